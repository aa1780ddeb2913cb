package postgresql

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "explicit ssl mode",
			config: Config{Host: "db", Port: 5432, User: "story", Password: "pw", Database: "stories", SSLMode: "require"},
			want:   "host=db port=5432 user=story password=pw dbname=stories sslmode=require",
		},
		{
			name:   "ssl mode defaults to disable",
			config: Config{Host: "localhost", Port: 5433, User: "u", Password: "p", Database: "d"},
			want:   "host=localhost port=5433 user=u password=p dbname=d sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestEmbeddedSchema(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS story_jobs")
	for _, column := range []string{"lease_owner", "lease_expires_at", "scenes", "final_video_url", "script_completed_at"} {
		assert.Contains(t, schema, column)
	}
}

func TestStats(t *testing.T) {
	// sqlx.Open does not dial, so the pool is empty
	db, err := sqlx.Open("postgres", (&Config{Host: "localhost", Port: 5432, Database: "stories"}).DSN())
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(7)

	c := &Client{db: db}
	assert.Contains(t, c.Stats(), "MaxOpenConns: 7, OpenConns: 0, InUse: 0, Idle: 0")
}
