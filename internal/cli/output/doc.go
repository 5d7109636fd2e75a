// Package output renders gridmesh-cli results as a table, JSON or YAML.
//
// Tables are built by reflection: a struct renders as FIELD/VALUE rows, a
// slice of structs as one row per element with a column per field. Column
// names come from the json tag, upper-cased.
package output
