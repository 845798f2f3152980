package sampler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"wisefido-hrv/internal/models"
)

// ErrNoSample 尚未收到任何有效采样
var ErrNoSample = errors.New("sampler: no sample received yet")

// maxLineLen 超过该长度仍无换行的数据视为噪声丢弃
const maxLineLen = 64

// SerialReader 串口 ADC 采样器（采样保持）。
// 下位机按行输出十进制 ADC 读数，后台 goroutine 解析并保存最新值，Read 返回最新值。
type SerialReader struct {
	port   io.ReadCloser
	logger *zap.Logger

	latest   atomic.Uint32
	valid    atomic.Bool
	badLines atomic.Uint64
	timeouts atomic.Uint64
	closing  atomic.Bool
	done     chan struct{}
}

// OpenSerial 打开串口并开始读取
func OpenSerial(name string, baud int, logger *zap.Logger) (*SerialReader, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("sampler: could not open serial port %s: %w", name, err)
	}
	return NewSerialReader(port, logger), nil
}

// NewSerialReader 基于已打开的端口创建采样器（测试时可传入 pipe）
func NewSerialReader(port io.ReadCloser, logger *zap.Logger) *SerialReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SerialReader{
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Read 返回最近一次收到的 ADC 读数
func (r *SerialReader) Read() (models.RawSample, error) {
	if !r.valid.Load() {
		return 0, ErrNoSample
	}
	return models.RawSample(r.latest.Load()), nil
}

// BadLines 无法解析的行数
func (r *SerialReader) BadLines() uint64 { return r.badLines.Load() }

// Timeouts 串口读超时次数（传感器静默）
func (r *SerialReader) Timeouts() uint64 { return r.timeouts.Load() }

// Close 关闭串口并等待读取 goroutine 退出
func (r *SerialReader) Close() error {
	r.closing.Store(true)
	err := r.port.Close()
	<-r.done
	return err
}

func (r *SerialReader) loop() {
	defer close(r.done)

	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := r.port.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				r.parse(line)
				line = line[:0]
				continue
			}
			if len(line) < maxLineLen {
				line = append(line, b)
			}
		}
		if r.closing.Load() {
			return
		}
		if err != nil {
			// 串口读超时（VMIN=0/VTIME）返回 (0, io.EOF)，继续等待
			if errors.Is(err, io.EOF) {
				r.timeouts.Add(1)
				continue
			}
			r.logger.Error("Serial read failed", zap.Error(err))
			return
		}
	}
}

func (r *SerialReader) parse(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	v, err := strconv.ParseUint(string(line), 10, 16)
	if err != nil {
		r.badLines.Add(1)
		return
	}
	r.latest.Store(uint32(v))
	r.valid.Store(true)
}
