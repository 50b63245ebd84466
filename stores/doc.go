// Package stores groups the authcore.Store implementations.
//
//   - memory: mutex-guarded maps for tests and single-process tools.
//   - redisstore: one Redis hash per account with a login index.
//   - sqlstore: database/sql over PostgreSQL (pgx) or SQLite.
//   - gormstore: the same schema through GORM models.
//
// Every store treats credentials-map keys for which authcore.IsSecretKey
// reports true as non-lookup keys and maps the rest with
// authcore.LookupAttribute.
package stores
