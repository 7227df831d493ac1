package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshloop/freshloop/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlPosts = `
posts:
  - id: r1
    user_id: Amy
    type: request
    status: active
    created_at: 2025-03-01T09:00:00Z
    ingredients:
      - name: Tomato
        normalized_name: tomato
      - name: Onion
        normalized_name: onion
        quantity: 2
  - id: o1
    user_id: Ben
    type: offer
    status: active
    location:
      description: Elm St
      lat: 40.7
      lng: -74.0
    ingredients:
      - name: Tomato
        normalized_name: tomato
        unit: kg
`

func TestLoadPosts(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json array",
			file:    "posts.json",
			content: `[{"id":"r1","user_id":"Amy","type":"request","status":"active"},{"_id":"o1","user_id":"Ben","type":"offer","status":"active"}]`,
		},
		{
			name:    "json object",
			file:    "posts.json",
			content: `{"posts":[{"id":"r1","user_id":"Amy","type":"request","status":"active"},{"id":"o1","user_id":"Ben","type":"offer","status":"active"}]}`,
		},
		{
			name:    "yaml object",
			file:    "posts.yaml",
			content: yamlPosts,
		},
		{
			name: "yaml list",
			file: "posts.yml",
			content: `
- id: r1
  user_id: Amy
  type: request
  status: active
- id: o1
  user_id: Ben
  type: offer
  status: active
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := loadPosts(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, posts, 2)
			assert.Equal(t, "r1", posts[0].ID)
			assert.Equal(t, domain.PostTypeRequest, posts[0].Type)
			assert.Equal(t, "o1", posts[1].ID)
			assert.Equal(t, "Ben", posts[1].UserID)
			assert.True(t, posts[1].IsActive())
		})
	}
}

func TestLoadPostsYAMLFields(t *testing.T) {
	posts, err := loadPosts(writeFile(t, "posts.yaml", yamlPosts))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), posts[0].CreatedAt.UTC())
	require.Len(t, posts[0].Ingredients, 2)
	require.NotNil(t, posts[0].Ingredients[1].Quantity)
	assert.Equal(t, 2.0, *posts[0].Ingredients[1].Quantity)

	assert.Equal(t, "Elm St", posts[1].Location.Description)
	require.NotNil(t, posts[1].Location.Lat)
	require.NotNil(t, posts[1].Ingredients[0].Unit)
	assert.Equal(t, "kg", *posts[1].Ingredients[0].Unit)
}

func TestLoadPostsErrors(t *testing.T) {
	_, err := loadPosts(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = loadPosts(writeFile(t, "bad.json", `{"posts":[`))
	assert.Error(t, err)

	_, err = loadPosts(writeFile(t, "bad.yaml", "posts: [a: b: c"))
	assert.Error(t, err)
}

func TestLoadPostsEmptyYAML(t *testing.T) {
	posts, err := loadPosts(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Empty(t, posts)
}
