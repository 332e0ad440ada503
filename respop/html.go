package respop

import "fmt"

// errorBody renders the minimal HTML5 document spec.md §4.4's body-assembly
// table calls for on 4xx/5xx responses.
func errorBody(status int) []byte {
	title := fmt.Sprintf("%d %s", status, statusText(status))
	return []byte("<!DOCTYPE html>\n<html><head><title>" + title +
		"</title></head><body><h1>" + title + "</h1></body></html>\n")
}
