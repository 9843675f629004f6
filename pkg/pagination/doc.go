// Package pagination follows Data Fair continuation links until a filter's
// result set is exhausted.
//
// The API returns a "next" URL with every page that has a successor. The
// driver sends the filter once, then follows each "next" URL verbatim, one
// request at a time, appending records in server order:
//
//	driver := pagination.NewDriver(dpeClient, pagination.DefaultConfig())
//	result := driver.Run(ctx, dpeClient.Endpoint(), dpeClient.Filter("zone_climatique", "H1a"))
//	if !result.Complete() {
//		log.Warn().Err(result.Err).Msg("partial result")
//	}
//
// The driver never retries and never returns an error: a failed page ends the
// run, and the records accumulated so far are kept on the Result together
// with the reason it stopped. An HTTP 400 is how the API signals the end of
// the range it will serve, so a run stopped by one still counts as complete.
package pagination
