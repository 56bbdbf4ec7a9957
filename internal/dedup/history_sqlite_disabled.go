//go:build !sqlite

package dedup

import (
	"errors"

	logx "tidings/pkg/logx"
)

func openSQLiteHistory(HistoryConfig, logx.Logger) (HistoryStore, error) {
	return nil, errors.New("sqlite history driver not compiled in (build with -tags sqlite)")
}
