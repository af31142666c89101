package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// CategoryID accepts both string and numeric ids on the wire. It is always sent back as text.
type CategoryID string

// UnmarshalJSON ...
func (id *CategoryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*id = CategoryID(text)
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("category id is neither a string nor a number: %s", string(data))
	}
	if i, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
		*id = CategoryID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = CategoryID(number.String())
	return nil
}

// Category ...
type Category struct {
	ID   CategoryID `json:"id"`
	Name string     `json:"name"`
}

var categoryPaths = []string{"/categories/", "/category/"}

// Categories lists the content categories. token may be empty: the endpoint is public on most deployments.
// A 404 on the canonical path falls back to the legacy singular path.
func (c *Client) Categories(ctx context.Context, token string) ([]Category, error) {
	var lastErr error
	for _, path := range categoryPaths {
		var categories []Category
		err := c.doJSON(ctx, http.MethodGet, path, token, nil, http.StatusOK, &categories)
		if err == nil {
			return categories, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotFound) {
			break
		}
		c.logger.Debugf("Categories not found at %s", path)
	}
	return nil, lastErr
}
