package postgres_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/warp/yukyu/store/postgres"
)

func TestRebind(t *testing.T) {
	d := postgres.Dialect()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "SELECT 1", "SELECT 1"},
		{"sequential", "UPDATE t SET a = ? WHERE id = ? AND b = ?", "UPDATE t SET a = $1 WHERE id = $2 AND b = $3"},
		{"quoted marks stay", "UPDATE t SET a = '?' WHERE id = ?", "UPDATE t SET a = '?' WHERE id = $1"},
		{"literal zero", "WHERE days_remaining <> '0' AND id = ?", "WHERE days_remaining <> '0' AND id = $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Rebind(tt.in))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	d := postgres.Dialect()
	assert.Equal(t, "postgres", d.Name())

	assert.True(t, d.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, d.IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, d.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, d.IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "grant_lots_dedup_key_key"`)))
	assert.False(t, d.IsUniqueViolation(nil))
}
