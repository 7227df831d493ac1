package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freshloop/freshloop/internal/domain"
)

// loadPosts reads posts from a JSON or YAML file. Both a bare list and an
// object with a "posts" key are accepted.
func loadPosts(path string) ([]domain.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read posts file: %w", err)
	}

	var posts []domain.Post
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		posts, err = decodeYAMLPosts(data)
	default:
		posts, err = decodeJSONPosts(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return posts, nil
}

func decodeJSONPosts(data []byte) ([]domain.Post, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var posts []domain.Post
		err := json.Unmarshal(data, &posts)
		return posts, err
	}
	var doc struct {
		Posts []domain.Post `json:"posts"`
	}
	err := json.Unmarshal(data, &doc)
	return doc.Posts, err
}

func decodeYAMLPosts(data []byte) ([]domain.Post, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var posts []domain.Post
	if root.Kind == yaml.SequenceNode {
		err := root.Decode(&posts)
		return posts, err
	}
	var doc struct {
		Posts []domain.Post `yaml:"posts"`
	}
	err := root.Decode(&doc)
	return doc.Posts, err
}
