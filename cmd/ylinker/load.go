package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

func readModule(path string, opts wasm.DecodeOptions) (*wasm.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	m, err := wasm.ParseModule(data, opts)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	log.Debug("decoded module",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
		zap.Int("functions", len(m.Functions)),
		zap.Int("sections", len(m.Sections)))
	return m, nil
}
