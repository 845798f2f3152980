package sampler

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"wisefido-hrv/internal/models"
)

// ADS1115 默认 I²C 地址（ADDR 接 GND）
const ADS1115Addr uint16 = 0x48

const (
	regConversion byte = 0x00
	regConfig     byte = 0x01

	cfgStart      = 0x8000 // OS: 启动转换
	cfgMuxSingle0 = 0x4000 // MUX: AIN0 对 GND，通道 n 再加 n<<12
	cfgPGA4V      = 0x0200 // ±4.096V
	cfgDR860      = 0x00E0 // 860 SPS，连续模式（MODE=0）
	cfgCompOff    = 0x0003 // 关闭比较器
)

// ADS1115 I²C 模数转换器采样器，连续单端转换。
type ADS1115 struct {
	dev *i2c.Dev
	bus i2c.BusCloser
	reg [1]byte
	buf [2]byte
}

// OpenADS1115 打开 I²C 总线并初始化 ADC。
// busName 可为 "/dev/i2c-1"、"I2C1"、"1"，空字符串选择第一个可用总线。
func OpenADS1115(busName string, addr uint16, channel int) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("ads1115: could not initialize host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("ads1115: could not open I2C bus: %w", err)
	}
	a, err := NewADS1115(bus, addr, channel)
	if err != nil {
		bus.Close()
		return nil, err
	}
	a.bus = bus
	return a, nil
}

// NewADS1115 在已打开的总线上初始化 ADC
func NewADS1115(bus i2c.Bus, addr uint16, channel int) (*ADS1115, error) {
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("ads1115: invalid channel %d", channel)
	}
	if addr == 0 {
		addr = ADS1115Addr
	}
	a := &ADS1115{dev: &i2c.Dev{Addr: addr, Bus: bus}, reg: [1]byte{regConversion}}

	cfg := uint16(cfgStart|cfgMuxSingle0|cfgPGA4V|cfgDR860|cfgCompOff) + uint16(channel)<<12
	if _, err := a.dev.Write([]byte{regConfig, byte(cfg >> 8), byte(cfg)}); err != nil {
		return nil, fmt.Errorf("ads1115: could not configure device: %w", err)
	}
	return a, nil
}

// Read 读取最近一次转换结果，负值截断为 0，15 位正量程扩展到 16 位
func (a *ADS1115) Read() (models.RawSample, error) {
	if err := a.dev.Tx(a.reg[:], a.buf[:]); err != nil {
		return 0, fmt.Errorf("ads1115: could not read conversion: %w", err)
	}
	raw := int16(binary.BigEndian.Uint16(a.buf[:]))
	if raw < 0 {
		return 0, nil
	}
	return models.RawSample(uint16(raw) << 1), nil
}

// Close 关闭总线（仅 OpenADS1115 打开的总线）
func (a *ADS1115) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}
