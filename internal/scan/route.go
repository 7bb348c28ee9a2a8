package scan

// Route names the page a status belongs on.
type Route string

const (
	RouteLocation Route = "location"
	RouteCapture  Route = "capture"
	RouteReview   Route = "review"
	RouteSummary  Route = "summary"
	RouteSuccess  Route = "success"
)

// RouteFor maps a status to the page that renders it.
func RouteFor(status Status) Route {
	switch status {
	case StatusReviewing:
		return RouteReview
	case StatusConfirming, StatusSubmitting, StatusSubmissionFailed, StatusSessionExpired:
		return RouteSummary
	case StatusCapturing, StatusAnalyzing, StatusPartialAnalysis:
		return RouteCapture
	case StatusComplete:
		return RouteSuccess
	default:
		return RouteLocation
	}
}
