package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/oauth2"
)

// tokenResponseSchema describes a successful POST /oauth/token answer.
// x/oauth2 has already rejected a missing access_token and error bodies.
const tokenResponseSchema = `{
	"type": "object",
	"required": ["access_token"],
	"properties": {
		"access_token":  {"type": "string", "minLength": 1},
		"token_type":    {"type": "string", "pattern": "^[Bb][Ee][Aa][Rr][Ee][Rr]$"},
		"refresh_token": {"type": "string"},
		"expires_in":    {"type": ["integer", "string"], "minimum": 0}
	}
}`

var tokenResponseValidator = mustSchema(tokenResponseSchema)

// decodeToken checks the fields of the token response that are used or
// forwarded before turning it into a ProviderToken.
func decodeToken(tok *oauth2.Token) (ProviderToken, error) {
	doc := map[string]any{"access_token": tok.AccessToken}
	if tok.TokenType != "" {
		doc["token_type"] = tok.TokenType
	}
	if tok.RefreshToken != "" {
		doc["refresh_token"] = tok.RefreshToken
	}
	if v := tok.Extra("expires_in"); v != nil && v != "" {
		doc["expires_in"] = v
	}

	result, err := tokenResponseValidator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return ProviderToken{}, protocolError("token response: %v", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return ProviderToken{}, protocolError("token response does not match schema: %s", strings.Join(problems, "; "))
	}

	return ProviderToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}, nil
}

// expiresIn reads expires_in from the raw token response, falling back to the
// absolute expiry x/oauth2 derived from it.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry).Round(time.Second)
	}
	return 0
}
