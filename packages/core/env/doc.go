// Package env resolves {{variable}} placeholders in batch files.
//
// Placeholders resolve, in order, from:
//   - {{$NAME}}: the process environment, then values loaded from a .env file
//   - {{name}}: variables set on the Resolver
//
// Unresolved placeholders are left in place and reported through the
// Resolver's WarnFunc.
package env
