package crunchbase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_ByDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/company", r.URL.Path)
		assert.Equal(t, "rk", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, "crunchbase4.p.rapidapi.com", r.Header.Get("X-RapidAPI-Host"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gusto.com", body["company_domain"])

		_, _ = w.Write([]byte(`{"company":{"name":"Gusto","funding":"$746M","size":"1001-5000","founded_year":"2011-12-01","location":"San Francisco","industries":["HR","Payroll"]}}`))
	}))
	defer srv.Close()

	c, err := NewClient("rk", WithBaseURL(srv.URL)).Lookup(context.Background(), "gusto.com", "Gusto")
	require.NoError(t, err)
	assert.Equal(t, "$746M", c.Funding)

	n, ok := c.EmployeeEstimate()
	assert.True(t, ok)
	assert.Equal(t, 3000, n)

	year, ok := c.Founded()
	assert.True(t, ok)
	assert.Equal(t, 2011, year)
}

func TestLookup_FallsBackToSlug(t *testing.T) {
	var seen []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen = append(seen, body)
		if body["company_domain"] != "" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"company":{"name":"Bamboo HR","founded_year":2008}}`))
	}))
	defer srv.Close()

	c, err := NewClient("rk", WithBaseURL(srv.URL)).Lookup(context.Background(), "bamboohr.com", "Bamboo HR")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "bamboo-hr", seen[1]["company_name"])

	year, ok := c.Founded()
	assert.True(t, ok)
	assert.Equal(t, 2008, year)
}

func TestLookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient("rk", WithBaseURL(srv.URL)).Lookup(context.Background(), "nobody.io", "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("rk", WithBaseURL(srv.URL)).Lookup(context.Background(), "gusto.com", "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.StatusCode)
}

func TestCompanyHelpers(t *testing.T) {
	c := &Company{Size: "unknown", FoundedYear: nil}
	_, ok := c.EmployeeEstimate()
	assert.False(t, ok)
	_, ok = c.Founded()
	assert.False(t, ok)

	assert.Equal(t, "acme-corp", Slug(" Acme Corp "))
}
