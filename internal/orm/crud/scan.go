package crud

import (
	"github.com/jmoiron/sqlx"
)

// scanRecord scans a single row into an attribute map
func scanRecord(row *sqlx.Row) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if err := row.MapScan(values); err != nil {
		return nil, err
	}
	normalizeValues(values)
	return values, nil
}

// scanColumn scans the first column of every row
func scanColumn(rows *sqlx.Rows) ([]interface{}, error) {
	defer rows.Close()

	var results []interface{}
	for rows.Next() {
		cols, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			results = append(results, normalizeValue(cols[0]))
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// normalizeValues converts driver byte slices to strings in place
func normalizeValues(values map[string]interface{}) {
	for k, v := range values {
		values[k] = normalizeValue(v)
	}
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
