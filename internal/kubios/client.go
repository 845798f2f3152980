// Package kubios 远程 HRV 分析服务客户端：client-credentials 换取 token，
// 提交 RR 间期序列，取回交感/副交感指数。
package kubios

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wisefido-hrv/internal/models"
)

// ErrClassificationUnavailable 远程分析失败（网络、鉴权、响应缺字段或非有限值）
var ErrClassificationUnavailable = errors.New("kubios: classification unavailable")

// token 提前过期的余量
const tokenSkew = 30 * time.Second

// Config 客户端配置
type Config struct {
	AuthURL      string
	AnalysisURL  string
	ClientID     string
	ClientSecret string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
}

// Analyzer 会话控制器依赖的分析接口
type Analyzer interface {
	Analyze(ctx context.Context, intervals []int) (models.AutonomicIndices, error)
}

// AnalysisRequest 分析请求体
type AnalysisRequest struct {
	Type     string          `json:"type"`
	Data     []int           `json:"data"`
	Analysis AnalysisOptions `json:"analysis"`
}

// AnalysisOptions 分析类型
type AnalysisOptions struct {
	Type string `json:"type"`
}

// AnalysisResponse 分析响应，只解析用到的字段
type AnalysisResponse struct {
	Status   string `json:"status"`
	Analysis *struct {
		SNSIndex *float64 `json:"sns_index"`
		PNSIndex *float64 `json:"pns_index"`
	} `json:"analysis"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Client 分析服务客户端
type Client struct {
	httpClient *resty.Client
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient 创建客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze 提交 PPI 序列（readiness 分析），返回 SNS/PNS 指数。
// 所有失败都包装为 ErrClassificationUnavailable。
func (c *Client) Analyze(ctx context.Context, intervals []int) (models.AutonomicIndices, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return models.AutonomicIndices{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}

	req := AnalysisRequest{
		Type:     "RRI",
		Data:     intervals,
		Analysis: AnalysisOptions{Type: "readiness"},
	}

	var result AnalysisResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Api-Key", c.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&result).
		Post(c.cfg.AnalysisURL)
	if err != nil {
		c.logger.Error("Kubios analysis call failed", zap.Error(err))
		return models.AutonomicIndices{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			c.invalidateToken()
		}
		c.logger.Error("Kubios analysis returned error",
			zap.Int("status_code", resp.StatusCode()),
		)
		return models.AutonomicIndices{}, fmt.Errorf("%w: status %d", ErrClassificationUnavailable, resp.StatusCode())
	}

	if result.Analysis == nil || result.Analysis.SNSIndex == nil || result.Analysis.PNSIndex == nil {
		return models.AutonomicIndices{}, fmt.Errorf("%w: response missing sns_index/pns_index", ErrClassificationUnavailable)
	}
	sns, pns := *result.Analysis.SNSIndex, *result.Analysis.PNSIndex
	if !finite(sns) || !finite(pns) {
		return models.AutonomicIndices{}, fmt.Errorf("%w: non-finite index", ErrClassificationUnavailable)
	}

	c.logger.Debug("Kubios analysis completed",
		zap.Int("interval_count", len(intervals)),
		zap.Float64("sns_index", sns),
		zap.Float64("pns_index", pns),
	)
	return models.AutonomicIndices{SNS: sns, PNS: pns}, nil
}

// accessToken 返回缓存的 token，过期时重新获取
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var tr tokenResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"client_id":  c.cfg.ClientID,
		}).
		SetResult(&tr).
		Post(c.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode())
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.token = tr.AccessToken
	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSkew
	if ttl < 0 {
		ttl = 0
	}
	c.expiresAt = c.now().Add(ttl)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
