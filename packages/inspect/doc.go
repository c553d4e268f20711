// Package inspect pulls values out of parsed responses and checks bodies
// against JSON Schemas.
//
// Extraction expressions select a source:
//
//	status           the status code
//	duration         the transfer time in milliseconds
//	header.<name>    a response header, by wire name or normalized key
//	body             the whole body, decoded when it is JSON
//	body.<path>      a gjson path into a JSON body, e.g. body.items[0].id
//	<path>           shorthand for body.<path>
package inspect
