package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campusnest/api/internal/domain"
	pfirestore "github.com/campusnest/api/internal/platform/firestore"
	"github.com/campusnest/api/internal/platform/pagination"
)

// listPage runs a keyset-paginated query ordered by timeField descending with the document
// id as tie-breaker. One extra document is fetched to decide whether a next page exists.
func listPage[D any, T any](
	ctx context.Context,
	base *pfirestore.BaseRepository[D],
	pager domain.Pagination,
	timeField string,
	filter pfirestore.QueryBuilder,
	timeOf func(D) time.Time,
	convert func(pfirestore.Document[D]) (T, error),
) (domain.CursorPage[T], error) {
	size := pager.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	size = min(size, pagination.MaxPageSize)

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}

	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter != nil {
			q = filter(q)
		}
		q = q.OrderBy(timeField, firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.Time, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}

	page := domain.CursorPage[T]{Items: make([]T, 0, min(len(docs), size))}
	for i, doc := range docs {
		if i == size {
			last := docs[size-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{Time: timeOf(last.Data), ID: last.ID})
			break
		}
		item, err := convert(doc)
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
