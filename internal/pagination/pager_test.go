package pagination_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
)

type item struct {
	Key string
	ID  string
}

// fetch simula el patrón limit+1 contra un dataset ordenado.
func fetch(data []item, after pagination.Cursor, limit int) []item {
	var out []item
	for _, it := range data {
		if !after.After(it.Key, it.ID) {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

func TestPagesCoverDatasetExactlyOnce(t *testing.T) {
	// 25 ítems, limit 10: páginas de 10, 10 y 5.
	var data []item
	for i := 0; i < 25; i++ {
		data = append(data, item{
			Key: fmt.Sprintf("k%02d", i),
			ID:  fmt.Sprintf("id%02d", i),
		})
	}

	const limit = 10
	seen := map[string]int{}
	var sizes []int

	cursor := ""
	for {
		req := pagination.Request{Limit: limit, Cursor: cursor}
		after, err := req.Validate()
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		rows := fetch(data, after, limit+1)
		page := pagination.Build(rows, limit, func(it item) pagination.Cursor {
			return pagination.Cursor{Key: it.Key, ID: it.ID}
		})

		sizes = append(sizes, len(page.Items))
		for _, it := range page.Items {
			seen[it.ID]++
		}

		if !page.HasMore {
			if page.NextCursor != "" {
				t.Fatal("última página con NextCursor no vacío")
			}
			break
		}
		if page.NextCursor == "" {
			t.Fatal("HasMore sin NextCursor")
		}
		cursor = page.NextCursor
	}

	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("tamaños de página %v, quiero [10 10 5]", sizes)
	}
	if len(seen) != 25 {
		t.Fatalf("vistos %d ítems distintos, quiero 25", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("ítem %s visto %d veces", id, n)
		}
	}
}

func TestRequestValidateLimits(t *testing.T) {
	for _, limit := range []int{0, -1, pagination.MaxLimit + 1} {
		req := pagination.Request{Limit: limit}
		if _, err := req.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("limit=%d: err=%v, quiero ErrInvalidInput", limit, err)
		}
	}
	req := pagination.Request{Limit: pagination.MaxLimit}
	if _, err := req.Validate(); err != nil {
		t.Fatalf("limit=%d rechazado: %v", pagination.MaxLimit, err)
	}
}

func TestDecodeRejectsMalformedCursors(t *testing.T) {
	bad := []string{
		"not-base64!!!",
		"eyJ4Ijoi",            // base64 truncado
		"eyJrIjoiYSJ9",        // {"k":"a"} sin id
		"eyJrIjoiYSIsImlkIjoiYiIsInh4IjoxfQ", // campo desconocido
	}
	for _, s := range bad {
		if _, err := pagination.Decode(s); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Decode(%q): err=%v, quiero ErrInvalidInput", s, err)
		}
	}
}

func TestDecodeRoundtrip(t *testing.T) {
	in := pagination.Cursor{Key: "bob@acme.test", ID: "42"}
	out, err := pagination.Decode(pagination.Encode(in))
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("roundtrip %+v != %+v", out, in)
	}
}

func TestCursorAfterOrdering(t *testing.T) {
	c := pagination.Cursor{Key: "m", ID: "5"}
	cases := []struct {
		key, id string
		want    bool
	}{
		{"z", "0", true},  // clave mayor
		{"a", "9", false}, // clave menor
		{"m", "6", true},  // misma clave, id mayor
		{"m", "5", false}, // exactamente el cursor
		{"m", "4", false}, // misma clave, id menor
	}
	for _, tc := range cases {
		if got := c.After(tc.key, tc.id); got != tc.want {
			t.Errorf("After(%q,%q)=%v, quiero %v", tc.key, tc.id, got, tc.want)
		}
	}
}
