package collab

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/knmi/sdsrules/pkg/errs"
)

// kivikDoc is the on-wire shape of a CatalogDocument, flattening Fields into
// top-level keys the way Mango selectors expect to query them.
type kivikDoc struct {
	ID           string         `json:"_id"`
	Rev          string         `json:"_rev,omitempty"`
	FileID       string         `json:"file_id"`
	Checksum     string         `json:"checksum,omitempty"`
	ChecksumPrev string         `json:"checksum_prev,omitempty"`
	ChecksumNext string         `json:"checksum_next,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

func toDocument(kd kivikDoc) *CatalogDocument {
	return &CatalogDocument{
		FileID:       kd.FileID,
		Checksum:     kd.Checksum,
		ChecksumPrev: kd.ChecksumPrev,
		ChecksumNext: kd.ChecksumNext,
		Fields:       kd.Fields,
	}
}

// CouchCatalog is a CatalogStore backed by one CouchDB/Cloudant-compatible
// database via Kivik, one per configured catalog collection
// (WFCatalog-daily, WFCatalog-segments, Dublin Core, PPSD). Adapted from the
// teacher module's storage/database.go CouchDBClient, narrowed to the
// find-by-fileId / save / delete-all-versions operations the conditions and
// actions need.
type CouchCatalog struct {
	client *kivik.Client
	db     *kivik.DB
	name   string
}

// CouchOptions configures NewCouchCatalog.
type CouchOptions struct {
	URL      string
	Database string
	Username string
	Password string
}

// NewCouchCatalog opens (and creates, if missing) the named CouchDB
// database.
func NewCouchCatalog(ctx context.Context, opts CouchOptions) (*CouchCatalog, error) {
	dsn := opts.URL
	client, err := kivik.New("couch", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open couchdb client: %v", errs.ErrIoError, err)
	}
	if opts.Username != "" {
		if err := client.Authenticate(ctx, kivikCookieAuth(opts.Username, opts.Password)); err != nil {
			return nil, fmt.Errorf("%w: authenticate couchdb: %v", errs.ErrIoError, err)
		}
	}

	exists, err := client.DBExists(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("%w: check database %s: %v", errs.ErrIoError, opts.Database, err)
	}
	if !exists {
		if err := client.CreateDB(ctx, opts.Database); err != nil {
			return nil, fmt.Errorf("%w: create database %s: %v", errs.ErrIoError, opts.Database, err)
		}
	}

	return &CouchCatalog{client: client, db: client.DB(opts.Database), name: opts.Database}, nil
}

// FindOne returns the catalog document for fileID, or nil if absent. The
// spec's Open Question on missing-document semantics is resolved as
// "absent document means no match" — callers treat a nil, nil return as
// "not found" rather than an error.
func (c *CouchCatalog) FindOne(ctx context.Context, fileID string) (*CatalogDocument, error) {
	row := c.db.Get(ctx, fileID)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get %s from %s: %v", errs.ErrIoError, fileID, c.name, row.Err())
	}
	var kd kivikDoc
	if err := row.ScanDoc(&kd); err != nil {
		return nil, fmt.Errorf("%w: scan %s from %s: %v", errs.ErrIoError, fileID, c.name, err)
	}
	return toDocument(kd), nil
}

// FindMany returns every revision-distinct document whose file_id matches
// (segments catalogs may hold more than one document per file).
func (c *CouchCatalog) FindMany(ctx context.Context, fileID string) ([]*CatalogDocument, error) {
	rows := c.db.Find(ctx, map[string]any{"selector": map[string]any{"file_id": fileID}})
	defer rows.Close()

	var docs []*CatalogDocument
	for rows.Next() {
		var kd kivikDoc
		if err := rows.ScanDoc(&kd); err != nil {
			return nil, fmt.Errorf("%w: scan find results from %s: %v", errs.ErrIoError, c.name, err)
		}
		docs = append(docs, toDocument(kd))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate find results from %s: %v", errs.ErrIoError, c.name, err)
	}
	return docs, nil
}

// Save creates or updates the document keyed by doc.FileID. When overwrite
// is false and a document already exists, Save returns without modifying it
// (used by actions that must not clobber an operator-edited record).
func (c *CouchCatalog) Save(ctx context.Context, doc CatalogDocument, overwrite bool) error {
	kd := kivikDoc{
		ID:           doc.FileID,
		FileID:       doc.FileID,
		Checksum:     doc.Checksum,
		ChecksumPrev: doc.ChecksumPrev,
		ChecksumNext: doc.ChecksumNext,
		Fields:       doc.Fields,
	}

	row := c.db.Get(ctx, doc.FileID)
	if row.Err() == nil {
		if !overwrite {
			return nil
		}
		var existing kivikDoc
		if err := row.ScanDoc(&existing); err == nil {
			kd.Rev = existing.Rev
		}
	}

	_, err := c.db.Put(ctx, doc.FileID, kd)
	if err != nil {
		return fmt.Errorf("%w: put %s into %s: %v", errs.ErrIoError, doc.FileID, c.name, err)
	}
	return nil
}

// DeleteMany removes every document matching fileID, ignoring a 404 (the
// document is already gone).
func (c *CouchCatalog) DeleteMany(ctx context.Context, fileID string) error {
	docs, err := c.FindMany(ctx, fileID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		row := c.db.Get(ctx, doc.FileID)
		var kd kivikDoc
		if err := row.ScanDoc(&kd); err != nil {
			continue
		}
		if _, err := c.db.Delete(ctx, doc.FileID, kd.Rev); err != nil && kivik.HTTPStatus(err) != 404 {
			return fmt.Errorf("%w: delete %s from %s: %v", errs.ErrIoError, doc.FileID, c.name, err)
		}
	}
	return nil
}

func kivikCookieAuth(username, password string) kivik.Authenticator {
	return kivik.CookieAuth(username, password)
}
