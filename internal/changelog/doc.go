// Package changelog persists the change logs produced by the diff engine.
//
// Two logs are kept as comma-separated UTF-8 files with a header row:
//
//	modificaciones.csv  timestamp,id,entidad,nombre,campo,viejo,nuevo
//	adiciones.csv       timestamp,tipo,id,entidad,nombre
//
// Logs are append-only in content but rewritten as a whole: existing rows
// are read, new rows appended, everything stably sorted and written to a
// temporary file that replaces the log atomically. No existing row is ever
// changed or dropped. An empty batch leaves the file untouched and never
// creates it.
package changelog
