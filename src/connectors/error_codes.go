package connectors

import "fmt"

// MT5 trade server return codes, as relayed by the terminal bridge.
const (
	RetcodeRequote      = 10004
	RetcodeReject       = 10006
	RetcodePlaced       = 10008
	RetcodeDone         = 10009
	RetcodeInvalid      = 10013
	RetcodeInvalidVol   = 10014
	RetcodeInvalidPrice = 10015
	RetcodeInvalidStops = 10016
	RetcodeDisabled     = 10017
	RetcodeMarketClosed = 10018
	RetcodeNoMoney      = 10019
	RetcodeInvalidFill  = 10030
	RetcodeNoConnection = 10031
)

// MT5RetcodeMessages maps terminal retcodes to human-readable messages.
var MT5RetcodeMessages = map[int]string{
	RetcodeRequote:      "TRADE_RETCODE_REQUOTE", // Price changed before execution
	RetcodeReject:       "TRADE_RETCODE_REJECT",  // Request rejected
	RetcodePlaced:       "TRADE_RETCODE_PLACED",  // Order placed
	RetcodeDone:         "TRADE_RETCODE_DONE",    // Request completed
	RetcodeInvalid:      "TRADE_RETCODE_INVALID", // Invalid request
	RetcodeInvalidVol:   "TRADE_RETCODE_INVALID_VOLUME",
	RetcodeInvalidPrice: "TRADE_RETCODE_INVALID_PRICE",
	RetcodeInvalidStops: "TRADE_RETCODE_INVALID_STOPS",
	RetcodeDisabled:     "TRADE_RETCODE_TRADE_DISABLED",
	RetcodeMarketClosed: "TRADE_RETCODE_MARKET_CLOSED",
	RetcodeNoMoney:      "TRADE_RETCODE_NO_MONEY",
	RetcodeInvalidFill:  "TRADE_RETCODE_INVALID_FILL", // Unsupported filling mode
	RetcodeNoConnection: "TRADE_RETCODE_CONNECTION",   // No connection to trade server
}

// GetRetcodeMsg returns a readable message for a terminal retcode. Unknown
// codes get a generic message including the code.
func GetRetcodeMsg(code int) string {
	if msg, ok := MT5RetcodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_MT5_RETCODE_%d", code)
}
