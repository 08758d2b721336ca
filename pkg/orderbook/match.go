package orderbook

// Fill is one execution from a matching sweep. Price is the maker's resting
// price in tick space.
type Fill struct {
	MakerOrderID string
	TakerOrderID string
	MakerTeamID  string
	TakerTeamID  string
	TakerSide    Side
	Price        int64
	Qty          int64
}

// Cancel reports resting quantity removed from the book without trading.
type Cancel struct {
	OrderID string
	TeamID  string
	Qty     int64
	Reason  string
}

const (
	CancelReasonRequest    = "request"
	CancelReasonSelfTrade  = "self_trade_prevention"
	CancelReasonSettlement = "settlement"
)
