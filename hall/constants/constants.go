package constants

// This is set during compilation. See the ops build scripts.
var Version = "latest"

// Activity kinds recorded against a registration. These feed both the
// transactional activity log and the external audit sink.
const (
	ActivityRegister     = "REGISTER"
	ActivityReSign       = "RE_SIGN"
	ActivityDrop         = "DROP"
	ActivityDispatchOut  = "DISPATCH_OUT"
	ActivityReturn       = "RETURN_TO_BOOK"
	ActivityOverdue      = "RESIGN_OVERDUE"
	ActivityExpire       = "EXPIRE"
	ActivityCheckMark    = "CHECK_MARK"
	ActivityExemption    = "EXEMPTION"
	ActivityByNameReview = "BY_NAME_REVIEW"
	ActivityBidRejected  = "BID_REJECTED"
	ActivityOutcome      = "DISPATCH_OUTCOME"
)

// Rule names surfaced in error messages. Callers display these verbatim.
const (
	RuleDuplicateRegistration = "one active registration per classification"
	RuleUniquePriorityKey     = "unique priority key per book"
	RuleReSignCycle           = "30-day re-sign cycle"
	RuleShortCallCap          = "two short calls per registration cycle"
	RuleCheckMarkCap          = "third check mark drops the registration"
	RuleBlackoutByName        = "no by-name dispatch during blackout"
	RuleBiddingWindow         = "bids only during the bidding window"
	RuleBidSuspension         = "bidding suspended after repeat rejections"
	RuleRequestCutoff         = "3 PM submission cutoff"
)
