package schema_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lendRequest struct {
	BookID   int    `json:"book_id" jsonschema:"title=Book ID,description=ID of the book"`
	PatronID int    `json:"patron_id" jsonschema:"title=Patron ID,description=ID of the patron"`
	Days     int    `json:"days,omitempty" jsonschema:"title=Days,description=Loan period in days,default=14"`
	Note     string `json:"note,omitempty"`
}

type shelf struct {
	Name  string  `json:"name"`
	Books []*item `json:"books,omitempty"`
	Main  *item   `json:"main,omitempty"`
}

type item struct {
	Title string `json:"title"`
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s, err := schema.New(reflect.TypeOf(lendRequest{}))
	require.NoError(t, err)

	exp := `{
	"properties": {
		"book_id": {
			"type": "integer",
			"title": "Book ID",
			"description": "ID of the book"
		},
		"patron_id": {
			"type": "integer",
			"title": "Patron ID",
			"description": "ID of the patron"
		},
		"days": {
			"type": "integer",
			"title": "Days",
			"description": "Loan period in days",
			"default": 14
		},
		"note": {
			"type": "string"
		}
	},
	"type": "object",
	"required": [
		"book_id",
		"patron_id"
	]
}`
	assert.Equal(t, exp, s.String())
	assert.Equal(t, exp, llmutils.ToJSONIndent(s.Parameters))
	assert.Equal(t, []string{"book_id", "patron_id"}, s.Required())

	defs := s.Defaults()
	assert.Equal(t, 1, defs.Len())
	v, ok := defs.Get("days")
	require.True(t, ok)
	assert.Equal(t, "14", fmt.Sprint(v))

	// cached
	s2, err := schema.New(reflect.TypeOf(&lendRequest{}))
	require.NoError(t, err)
	assert.Equal(t, s.String(), s2.String())
}

func TestSchema_Nested(t *testing.T) {
	t.Parallel()

	s, err := schema.New(reflect.TypeOf(shelf{}))
	require.NoError(t, err)

	books, ok := s.Parameters.Properties.Get("books")
	require.True(t, ok)
	require.NotNil(t, books.Items)
	assert.Empty(t, books.Items.Ref)
	assert.Equal(t, "object", books.Items.Type)

	main, ok := s.Parameters.Properties.Get("main")
	require.True(t, ok)
	assert.Empty(t, main.Ref)
	assert.Equal(t, 0, s.Defaults().Len())
}

func TestSchema_Errors(t *testing.T) {
	t.Parallel()

	_, err := schema.New(reflect.TypeOf(""))
	assert.EqualError(t, err, "schema: string is not a struct")
	_, err = schema.New(nil)
	assert.EqualError(t, err, "schema: nil type")

	assert.Panics(t, func() {
		schema.MustNew(reflect.TypeOf(1))
	})
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	s, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"query"},
	})
	require.NoError(t, err)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"query"}, s.Required)
	q, ok := s.Properties.Get("query")
	require.True(t, ok)
	assert.Equal(t, "string", q.Type)
}
