package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tm-codec/ccsds"
)

// fileConfig mirrors the enumerated configuration surface as a YAML
// document, using the on-the-wire field names so operators can hand-author
// a config file from the protocol spec directly.
type fileConfig struct {
	SpacecraftID         uint16 `yaml:"spacecraft_id"`
	VirtualChannelID     uint8  `yaml:"tm_virtual_channel_id"`
	TransferFrameSize    int    `yaml:"tm_transfer_frame_size"`
	HasSecondaryHeader   bool   `yaml:"tm_transfer_frame_has_sec_hdr"`
	HasFrameErrorControl bool   `yaml:"tm_transfer_frame_has_fecf"`
}

func loadConfig(path string) (ccsds.Config, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return ccsds.Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return ccsds.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg := ccsds.Config{
		SpacecraftID:         fc.SpacecraftID,
		VirtualChannelID:     fc.VirtualChannelID,
		TransferFrameSize:    fc.TransferFrameSize,
		HasSecondaryHeader:   fc.HasSecondaryHeader,
		HasFrameErrorControl: fc.HasFrameErrorControl,
	}
	return cfg, cfg.Validate()
}
