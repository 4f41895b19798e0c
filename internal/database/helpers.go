package database

import (
	"database/sql"

	"github.com/ppiankov/alma/internal/model"
)

// execRequireRows returns err if non-nil, or notFoundErr if nothing was affected
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

func statusStrings(statuses []model.LinkStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type countRow struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}
