// Package response renders JSON API responses and maps errors to
// structured HTTP errors.
//
// Handlers return a Response instead of writing to the ResponseWriter
// directly. Handle adapts such a function to http.Handler and renders any
// returned error through JSONError:
//
//	mux.Handle("GET /notifications", response.Handle(log, func(r *http.Request) response.Response {
//		list, err := feed.Recent(r.Context(), userID)
//		if err != nil {
//			return response.Error(err)
//		}
//		return response.JSON(list)
//	}))
//
// Errors that are already an HTTPError keep their status and code. Errors
// implementing StatusCode() int are mapped to the predefined error for that
// status. Anything else becomes a 500 whose cause is logged, not exposed.
package response
