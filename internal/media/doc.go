// Package media handles image uploads into blob storage and reports how
// much of the storage quota is in use.
package media
