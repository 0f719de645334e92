// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/yaml.v2"
)

// Config describes where the zlogan core, its DMA engine and the DMA
// buffer live on a given board.
type Config struct {
	DevMem string `koanf:"devmem" yaml:"devmem"`

	Ctrl Window    `koanf:"ctrl" yaml:"ctrl"`
	DMA  DMAConfig `koanf:"dma" yaml:"dma"`

	Buffer struct {
		Device string `koanf:"device" yaml:"device"` // udmabuf character device
		Sysfs  string `koanf:"sysfs" yaml:"sysfs"`   // udmabuf sysfs directory
	} `koanf:"buffer" yaml:"buffer"`

	Priority int           `koanf:"priority" yaml:"priority"` // SCHED_FIFO priority
	Poll     time.Duration `koanf:"poll" yaml:"poll"`
	Settle   struct {
		Retries  uint64        `koanf:"retries" yaml:"retries"`
		Interval time.Duration `koanf:"interval" yaml:"interval"`
	} `koanf:"settle" yaml:"settle"`

	DB   string `koanf:"db" yaml:"db"`     // run catalog DSN, if any
	ODir string `koanf:"odir" yaml:"odir"` // where zla-srv stores run containers, if any
}

// Window is a physical address range.
type Window struct {
	Addr uint64 `koanf:"addr" yaml:"addr"`
	Size int    `koanf:"size" yaml:"size"`
}

// DMAConfig describes the DMA engine.
type DMAConfig struct {
	Addr       uint64 `koanf:"addr" yaml:"addr"`
	Size       int    `koanf:"size" yaml:"size"`
	LengthBits int    `koanf:"length-bits" yaml:"length-bits"` // width of the length register
	AlignWords int    `koanf:"align-words" yaml:"align-words"` // buffer alignment, in words
}

// DefaultConfig returns the configuration of the reference Zynq design.
func DefaultConfig() Config {
	var cfg Config
	cfg.DevMem = "/dev/mem"
	cfg.Ctrl = Window{Addr: 0x43c00000, Size: 0x24}
	cfg.DMA = DMAConfig{
		Addr:       0x40400000,
		Size:       0x5c,
		LengthBits: 23,
		AlignWords: 16,
	}
	cfg.Buffer.Device = "/dev/udmabuf0"
	cfg.Buffer.Sysfs = "/sys/class/u-dma-buf/udmabuf0"
	cfg.Priority = 99
	cfg.Poll = 1 * time.Microsecond
	cfg.Settle.Retries = 1000
	cfg.Settle.Interval = 10 * time.Microsecond
	return cfg
}

// LoadConfig loads the configuration from the YAML file fname, on top of
// DefaultConfig. A missing file is not an error.
func LoadConfig(fname string) (Config, error) {
	k := koanf.New(".")
	err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err != nil {
		return Config{}, fmt.Errorf("zla: could not load default config: %w", err)
	}

	if fname != "" {
		_, err = os.Stat(fname)
		switch {
		case err == nil:
			err = k.Load(file.Provider(fname), kyaml.Parser())
			if err != nil {
				return Config{}, fmt.Errorf("zla: could not load config %q: %w", fname, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// ok, use defaults.
		default:
			return Config{}, fmt.Errorf("zla: could not stat config %q: %w", fname, err)
		}
	}

	var cfg Config
	err = k.Unmarshal("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("zla: could not decode config: %w", err)
	}
	return cfg, nil
}

// WriteYAML writes the configuration in YAML to w.
func (cfg Config) WriteYAML(w io.Writer) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("zla: could not encode config: %w", err)
	}
	_, err = w.Write(raw)
	if err != nil {
		return fmt.Errorf("zla: could not write config: %w", err)
	}
	return nil
}

func (cfg Config) options() []Option {
	return []Option{
		WithLengthBits(cfg.DMA.LengthBits),
		WithAlign(cfg.DMA.AlignWords),
		WithPollInterval(cfg.Poll),
		WithSettle(cfg.Settle.Retries, cfg.Settle.Interval),
	}
}
