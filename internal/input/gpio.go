package input

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// edgeWait 单次等待边沿的超时，用于检查 ctx
const edgeWait = 100 * time.Millisecond

// EdgePin 按键引脚
type EdgePin interface {
	Name() string
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// Button 上拉输入、下降沿触发的按键
type Button struct {
	pin     EdgePin
	trigger Trigger
	line    *Line
	logger  *zap.Logger
}

// OpenButton 按名称打开 GPIO 引脚（如 "GPIO9"）
func OpenButton(name string, trigger Trigger, line *Line, logger *zap.Logger) (*Button, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %s not found", name)
	}
	return NewButton(pin, trigger, line, logger)
}

// NewButton 配置引脚为上拉输入、下降沿中断
func NewButton(pin EdgePin, trigger Trigger, line *Line, logger *zap.Logger) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("failed to configure pin %s: %w", pin.Name(), err)
	}
	return &Button{pin: pin, trigger: trigger, line: line, logger: logger}, nil
}

// Run 每个下降沿投递一次事件，直到 ctx 取消
func (b *Button) Run(ctx context.Context) {
	b.logger.Info("Button armed",
		zap.String("pin", b.pin.Name()),
		zap.Stringer("trigger", b.trigger),
	)
	for ctx.Err() == nil {
		if !b.pin.WaitForEdge(edgeWait) {
			continue
		}
		b.line.Press(b.trigger)
	}
}
