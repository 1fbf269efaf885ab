// Package openapi builds the OpenAPI 3.1 document for the gateway's HTTP
// API. The surface is fixed, so the document is assembled once at startup
// and served as-is.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Document builds the OpenAPI description of the management and proxy API.
func Document(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Textgate API",
			Description: "Authenticated gateway for an Ollama-compatible text-generation backend: accounts, API keys, quotas, and usage analytics.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT or API key",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	registerSchemas(doc)
	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	addUserPaths(doc)
	addKeyPaths(doc)
	addUsagePaths(doc)
	addProxyPaths(doc)
	addSystemPaths(doc)

	return doc
}

// ---------------------------------------------------------------------------
// Component schemas
// ---------------------------------------------------------------------------

func registerSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    typedSchema("integer", "int32"),
			"message": typedSchema("string", ""),
			"context": objectSchema(nil),
		}),
	})

	doc.Components.Schemas["User"] = objectSchema(openapi3.Schemas{
		"id":            typedSchema("integer", "int64"),
		"username":      typedSchema("string", ""),
		"email":         typedSchema("string", "email"),
		"full_name":     typedSchema("string", ""),
		"role":          roleSchema(),
		"is_active":     typedSchema("boolean", ""),
		"is_verified":   typedSchema("boolean", ""),
		"last_login_at": typedSchema("string", "date-time"),
		"created_at":    typedSchema("string", "date-time"),
		"updated_at":    typedSchema("string", "date-time"),
	})

	doc.Components.Schemas["APIKey"] = objectSchema(openapi3.Schemas{
		"id":                   typedSchema("integer", "int64"),
		"key_id":               typedSchema("string", ""),
		"name":                 typedSchema("string", ""),
		"user_id":              typedSchema("integer", "int64"),
		"role":                 roleSchema(),
		"is_active":            typedSchema("boolean", ""),
		"rate_limit_per_hour":  typedSchema("integer", "int64"),
		"rate_limit_per_day":   typedSchema("integer", "int64"),
		"rate_limit_per_month": typedSchema("integer", "int64"),
		"usage_count_hour":     typedSchema("integer", "int64"),
		"usage_count_day":      typedSchema("integer", "int64"),
		"usage_count_month":    typedSchema("integer", "int64"),
		"total_usage":          typedSchema("integer", "int64"),
		"expires_at":           typedSchema("string", "date-time"),
		"created_at":           typedSchema("string", "date-time"),
		"last_used_at":         typedSchema("string", "date-time"),
	})

	doc.Components.Schemas["UsageStats"] = objectSchema(openapi3.Schemas{
		"total_requests":       typedSchema("integer", "int64"),
		"total_tokens":         typedSchema("integer", "int64"),
		"avg_latency_ms":       typedSchema("number", "double"),
		"requests_by_status":   objectSchema(nil),
		"requests_by_endpoint": objectSchema(nil),
		"period_start":         typedSchema("string", "date-time"),
		"period_end":           typedSchema("string", "date-time"),
	})

	doc.Components.Schemas["LoginResponse"] = objectSchema(openapi3.Schemas{
		"access_token": typedSchema("string", ""),
		"token_type":   typedSchema("string", ""),
		"expires_in":   typedSchema("integer", "int32"),
	})

	doc.Components.Schemas["CreateKeyResponse"] = objectSchema(openapi3.Schemas{
		"api_key": typedSchema("string", ""),
		"key":     openapi3.NewSchemaRef("#/components/schemas/APIKey", nil),
	})
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func addAuthPaths(doc *openapi3.T) {
	registerBody := jsonBody("Account to create", true, objectSchema(openapi3.Schemas{
		"username":  typedSchema("string", ""),
		"email":     typedSchema("string", "email"),
		"password":  typedSchema("string", "password"),
		"full_name": typedSchema("string", ""),
	}))
	doc.Paths.Set("/api/auth/register", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Register a new account",
			OperationID: "register",
			Security:    &openapi3.SecurityRequirements{},
			RequestBody: registerBody,
			Responses: newResponses("201", "Created account",
				openapi3.NewSchemaRef("#/components/schemas/User", nil)),
		},
	})

	loginBody := jsonBody("Credentials (username also accepts the account email)", true,
		objectSchema(openapi3.Schemas{
			"username": typedSchema("string", ""),
			"password": typedSchema("string", "password"),
		}))
	doc.Paths.Set("/api/auth/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Log in and obtain a session token",
			OperationID: "login",
			Security:    &openapi3.SecurityRequirements{},
			RequestBody: loginBody,
			Responses: newResponses("200", "Session token",
				openapi3.NewSchemaRef("#/components/schemas/LoginResponse", nil)),
		},
	})

	doc.Paths.Set("/api/auth/me", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Get the authenticated account",
			OperationID: "get_me",
			Responses: newResponses("200", "Account",
				openapi3.NewSchemaRef("#/components/schemas/User", nil)),
		},
		Put: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Update the authenticated account",
			Description: "Role and active-flag changes are ignored for non-admin callers. Unknown fields are rejected.",
			OperationID: "update_me",
			RequestBody: selfUpdateBody(),
			Responses: newResponses("200", "Updated account",
				openapi3.NewSchemaRef("#/components/schemas/User", nil)),
		},
	})
}

func addUserPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/auth/users", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"users"},
			Summary:     "List accounts (admin only)",
			OperationID: "list_users",
			Responses: newResponses("200", "Accounts", objectSchema(openapi3.Schemas{
				"users": arraySchema("#/components/schemas/User"),
				"meta":  metaSchema(),
			})),
		},
	})

	doc.Paths.Set("/api/auth/users/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParameter("User ID")},
		Get: &openapi3.Operation{
			Tags:        []string{"users"},
			Summary:     "Get an account (admin only)",
			OperationID: "get_user",
			Responses: newResponses("200", "Account",
				openapi3.NewSchemaRef("#/components/schemas/User", nil)),
		},
		Put: &openapi3.Operation{
			Tags:        []string{"users"},
			Summary:     "Update an account (admin only)",
			OperationID: "update_user",
			RequestBody: selfUpdateBody(),
			Responses: newResponses("200", "Updated account",
				openapi3.NewSchemaRef("#/components/schemas/User", nil)),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"users"},
			Summary:     "Delete an account and its keys and logs (admin only)",
			OperationID: "delete_user",
			Responses:   newResponses("200", "Deleted", successSchema()),
		},
	})
}

func addKeyPaths(doc *openapi3.T) {
	createBody := jsonBody("Key settings; zero limits fall back to defaults", false,
		objectSchema(openapi3.Schemas{
			"name":                 typedSchema("string", ""),
			"rate_limit_per_hour":  typedSchema("integer", "int64"),
			"rate_limit_per_day":   typedSchema("integer", "int64"),
			"rate_limit_per_month": typedSchema("integer", "int64"),
			"expires_at":           typedSchema("string", "date-time"),
		}))
	updateBody := jsonBody("Fields to change; absent fields stay untouched", true,
		objectSchema(openapi3.Schemas{
			"name":                 typedSchema("string", ""),
			"is_active":            typedSchema("boolean", ""),
			"rate_limit_per_hour":  typedSchema("integer", "int64"),
			"rate_limit_per_day":   typedSchema("integer", "int64"),
			"rate_limit_per_month": typedSchema("integer", "int64"),
			"expires_at":           typedSchema("string", "date-time"),
		}))

	doc.Paths.Set("/api/auth/api-keys", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"api-keys"},
			Summary:     "Create an API key",
			Description: "The combined credential is returned exactly once and cannot be recovered later.",
			OperationID: "create_api_key",
			RequestBody: createBody,
			Responses: newResponses("201", "New key with its one-time credential",
				openapi3.NewSchemaRef("#/components/schemas/CreateKeyResponse", nil)),
		},
		Get: &openapi3.Operation{
			Tags:        []string{"api-keys"},
			Summary:     "List the authenticated account's API keys",
			OperationID: "list_api_keys",
			Responses: newResponses("200", "Keys", objectSchema(openapi3.Schemas{
				"keys": arraySchema("#/components/schemas/APIKey"),
				"meta": metaSchema(),
			})),
		},
	})

	doc.Paths.Set("/api/auth/api-keys/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParameter("Key ID")},
		Put: &openapi3.Operation{
			Tags:        []string{"api-keys"},
			Summary:     "Update an API key",
			OperationID: "update_api_key",
			RequestBody: updateBody,
			Responses: newResponses("200", "Updated key",
				openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"api-keys"},
			Summary:     "Delete an API key",
			OperationID: "delete_api_key",
			Responses:   newResponses("200", "Deleted", successSchema()),
		},
	})
}

func addUsagePaths(doc *openapi3.T) {
	rangeParams := openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("start").
				WithDescription("Range start (RFC 3339).").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("end").
				WithDescription("Range end (RFC 3339).").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}),
		},
	}

	doc.Paths.Set("/api/auth/usage/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"usage"},
			Summary:     "Usage aggregates for the authenticated account",
			OperationID: "usage_stats",
			Parameters:  rangeParams,
			Responses: newResponses("200", "Aggregates",
				openapi3.NewSchemaRef("#/components/schemas/UsageStats", nil)),
		},
	})

	doc.Paths.Set("/api/auth/usage/recent", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"usage"},
			Summary:     "Most recent usage log entries",
			OperationID: "usage_recent",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("limit").
						WithDescription("Maximum entries to return (default 100, max 1000).").
						WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
				},
			},
			Responses: newResponses("200", "Log entries", objectSchema(openapi3.Schemas{
				"logs": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: objectSchema(nil),
				}},
				"meta": metaSchema(),
			})),
		},
	})
}

func addProxyPaths(doc *openapi3.T) {
	generateBody := jsonBody("Completion request, forwarded verbatim to the backend", true,
		objectSchema(openapi3.Schemas{
			"model":  typedSchema("string", ""),
			"prompt": typedSchema("string", ""),
			"stream": typedSchema("boolean", ""),
		}))
	chatBody := jsonBody("Chat request, forwarded verbatim to the backend", true,
		objectSchema(openapi3.Schemas{
			"model": typedSchema("string", ""),
			"messages": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: objectSchema(nil),
			}},
			"stream": typedSchema("boolean", ""),
		}))

	doc.Paths.Set("/api/generate", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"proxy"},
			Summary:     "Generate a completion (generate:write)",
			Description: "Streams NDJSON chunks when the request asks for streaming.",
			OperationID: "generate",
			RequestBody: generateBody,
			Responses:   newResponses("200", "Backend response", objectSchema(nil)),
		},
	})

	doc.Paths.Set("/api/chat", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"proxy"},
			Summary:     "Generate a chat completion (chat:write)",
			Description: "Streams NDJSON chunks when the request asks for streaming.",
			OperationID: "chat",
			RequestBody: chatBody,
			Responses:   newResponses("200", "Backend response", objectSchema(nil)),
		},
	})

	doc.Paths.Set("/api/models", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"proxy"},
			Summary:     "List backend models (models:read)",
			OperationID: "list_models",
			Responses:   newResponses("200", "Model list", objectSchema(nil)),
		},
	})
}

func addSystemPaths(doc *openapi3.T) {
	noAuth := &openapi3.SecurityRequirements{}

	doc.Paths.Set("/", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Service info",
			OperationID: "service_info",
			Security:    noAuth,
			Responses:   newResponses("200", "Name and version", objectSchema(nil)),
		},
	})
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Liveness probe",
			OperationID: "healthz",
			Security:    noAuth,
			Responses:   newResponses("200", "Alive", objectSchema(nil)),
		},
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Readiness probe (store and backend reachable)",
			OperationID: "readyz",
			Security:    noAuth,
			Responses:   newResponses("200", "Ready", objectSchema(nil)),
		},
	})
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

func typedSchema(typ, format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:   &openapi3.Types{typ},
		Format: format,
	}}
}

func objectSchema(props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}}
}

func arraySchema(itemRef string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: openapi3.NewSchemaRef(itemRef, nil),
	}}
}

func roleSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"string"},
		Enum: []interface{}{"admin", "developer", "user", "read_only"},
	}}
}

func metaSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"count": typedSchema("integer", "int32"),
	})
}

func successSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"success": typedSchema("boolean", ""),
		"message": typedSchema("string", ""),
	})
}

func idParameter(description string) *openapi3.ParameterRef {
	p := openapi3.NewPathParameter("id").
		WithDescription(description).
		WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"})
	return &openapi3.ParameterRef{Value: p}
}

func selfUpdateBody() *openapi3.RequestBodyRef {
	return jsonBody("Fields to change; absent fields stay untouched", true,
		objectSchema(openapi3.Schemas{
			"email":     typedSchema("string", "email"),
			"full_name": typedSchema("string", ""),
			"password":  typedSchema("string", "password"),
			"role":      roleSchema(),
			"is_active": typedSchema("boolean", ""),
		}))
}

func jsonBody(description string, required bool, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    required,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

// newResponses builds a Responses map with a success response and the
// standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request",
		"401": "Unauthorized",
		"403": "Forbidden",
		"422": "Validation failure",
		"429": "Quota exhausted",
	} {
		d := desc
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
