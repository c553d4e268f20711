// Package batch loads YAML batch files: a list of requests sent together
// through one mux.Context.
//
// A batch file looks like:
//
//	variables:
//	  base: http://localhost:1080
//	requests:
//	  - name: slow
//	    url: "{{base}}/sleep?ms=200"
//	  - name: echo
//	    method: POST
//	    url: "{{base}}/print"
//	    query:
//	      content: hello
//	    headers:
//	      Authorization: "Bearer {{$API_TOKEN}}"
//	    timeout: 500
//
// Placeholders are resolved with an env.Resolver when the file is loaded.
package batch
