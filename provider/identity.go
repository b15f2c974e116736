package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/cube-auth/internal/utils"
	"github.com/xeipuuv/gojsonschema"
)

// ProviderToken is the provider's answer to a code exchange. It is only held
// for the duration of a callback.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// ExternalIdentity is the provider's view of the authenticated user.
// ExternalID is never empty.
type ExternalIdentity struct {
	ExternalID  string
	DisplayName string
	Email       string
}

// userInfoSchema describes GET /api/v0/me. wca_id is null for accounts that
// never competed, so the numeric id is the fallback subject.
const userInfoSchema = `{
	"type": "object",
	"required": ["me"],
	"properties": {
		"me": {
			"type": "object",
			"required": ["id", "name"],
			"properties": {
				"id":     {"type": "integer", "minimum": 1},
				"wca_id": {"type": ["string", "null"]},
				"name":   {"type": "string"},
				"email":  {"type": ["string", "null"]}
			}
		}
	}
}`

var userInfoValidator = mustSchema(userInfoSchema)

type userInfoResponse struct {
	Me struct {
		ID    int64   `json:"id"`
		WcaID *string `json:"wca_id"`
		Name  string  `json:"name"`
		Email *string `json:"email"`
	} `json:"me"`
}

func mustSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic("invalid provider schema: " + err.Error())
	}
	return s
}

// decodeIdentity validates body against the user info schema before decoding it.
func decodeIdentity(body []byte) (ExternalIdentity, error) {
	result, err := userInfoValidator.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return ExternalIdentity{}, protocolError("user info is not JSON: %v", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return ExternalIdentity{}, protocolError("user info does not match schema: %s", strings.Join(problems, "; "))
	}

	var info userInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return ExternalIdentity{}, protocolError("user info decode: %v", err)
	}

	identity := ExternalIdentity{
		ExternalID:  strings.TrimSpace(utils.Value(info.Me.WcaID)),
		DisplayName: info.Me.Name,
		Email:       utils.Value(info.Me.Email),
	}
	if identity.ExternalID == "" {
		identity.ExternalID = strconv.FormatInt(info.Me.ID, 10)
	}
	return identity, nil
}
