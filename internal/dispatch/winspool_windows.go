//go:build windows

package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexbrainman/printer"
)

// WinSpool writes the document as a RAW job through the Win32 spooler API.
type WinSpool struct{}

func newWinSpool() (Strategy, error) {
	return &WinSpool{}, nil
}

// Name implements Strategy.
func (s *WinSpool) Name() string { return StrategyWinSpool }

// Attempt implements Strategy.
func (s *WinSpool) Attempt(ctx context.Context, documentPath, name string) error {
	if err := ctx.Err(); err != nil {
		return &StrategyError{Strategy: StrategyWinSpool, Message: err.Error()}
	}
	if err := s.send(documentPath, name); err != nil {
		return &StrategyError{Strategy: StrategyWinSpool, Message: err.Error()}
	}
	return nil
}

func (s *WinSpool) send(documentPath, name string) (err error) {
	data, err := os.Open(documentPath)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer data.Close()

	p, err := printer.Open(name)
	if err != nil {
		return fmt.Errorf("open printer %q: %w", name, err)
	}
	defer p.Close()

	if err := p.StartDocument(filepath.Base(documentPath), "RAW"); err != nil {
		return fmt.Errorf("start document: %w", err)
	}
	defer func() {
		if endErr := p.EndDocument(); err == nil && endErr != nil {
			err = fmt.Errorf("end document: %w", endErr)
		}
	}()

	if err := p.StartPage(); err != nil {
		return fmt.Errorf("start page: %w", err)
	}
	defer func() {
		if endErr := p.EndPage(); err == nil && endErr != nil {
			err = fmt.Errorf("end page: %w", endErr)
		}
	}()

	w := bufio.NewWriter(p)
	if _, err := w.ReadFrom(data); err != nil {
		return fmt.Errorf("write to printer: %w", err)
	}
	return w.Flush()
}
