package pagination

import (
	"fmt"
	"testing"
)

type item struct{ ID string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "2010735548360036353"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "2010735548360036353" {
		t.Fatalf("unexpected cursor %+v", cursor)
	}

	if _, err := DecodeCursor("not-base64!!"); err == nil {
		t.Fatal("expected invalid token rejected")
	}
}

func TestBuildCursorPageInfoTrimsOverfetch(t *testing.T) {
	items := make([]*item, 0, 4)
	for i := 0; i < 4; i++ {
		items = append(items, &item{ID: fmt.Sprintf("%d", i)})
	}

	info, page := BuildCursorPageInfo(items, 3, func(it *item) string { return it.ID })
	if !info.HasMore {
		t.Fatal("expected has_more with an extra row fetched")
	}
	if len(page) != 3 {
		t.Fatalf("expected page trimmed to 3, got %d", len(page))
	}
	if info.NextPageToken != "2" {
		t.Fatalf("expected token from last kept row, got %q", info.NextPageToken)
	}

	info, page = BuildCursorPageInfo(page[:2], 3, func(it *item) string { return it.ID })
	if info.HasMore {
		t.Fatal("expected no more pages")
	}
	if len(page) != 2 {
		t.Fatalf("expected untouched page, got %d", len(page))
	}

	info, _ = BuildCursorPageInfo(nil, 3, func(it *item) string { return it.ID })
	if info.HasMore || info.NextPageToken != "" {
		t.Fatalf("expected empty page info, got %+v", info)
	}
}
