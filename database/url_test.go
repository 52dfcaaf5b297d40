package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructDatabaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		baseURL      string
		databaseName string
		want         string
	}{
		{
			name:    "no database name returns base",
			baseURL: "postgres://u:p@db:5432",
			want:    "postgres://u:p@db:5432",
		},
		{
			name:         "appends name and sslmode",
			baseURL:      "postgres://u:p@db:5432/",
			databaseName: "poolbet",
			want:         "postgres://u:p@db:5432/poolbet?sslmode=disable",
		},
		{
			name:         "keeps existing query",
			baseURL:      "postgres://u:p@db:5432?connect_timeout=5",
			databaseName: "poolbet",
			want:         "postgres://u:p@db:5432/poolbet?connect_timeout=5&sslmode=disable",
		},
		{
			name:         "respects explicit sslmode",
			baseURL:      "postgres://u:p@db:5432?sslmode=require",
			databaseName: "poolbet",
			want:         "postgres://u:p@db:5432/poolbet?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ConstructDatabaseURL(tt.baseURL, tt.databaseName))
		})
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://poolbet:xxxxx@db:5432/poolbet", RedactURL("postgres://poolbet:secret@db:5432/poolbet"))
	assert.Equal(t, "<invalid database url>", RedactURL("postgres://%zz"))
}
