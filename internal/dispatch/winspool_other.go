//go:build !windows

package dispatch

import "errors"

func newWinSpool() (Strategy, error) {
	return nil, errors.New("winspool strategy is only available on windows")
}
