package conversation

// Replies sent by the state machine
const (
	MsgStart          = "Hi! What do you want to find on Avito?"
	MsgAskPrice       = "Now enter the maximum price (numbers only):"
	MsgInvalidPrice   = "Please enter a valid number for the maximum price."
	MsgSearching      = "Searching for '%s' on Avito with a maximum price of %s..."
	MsgCancelled      = "Search cancelled."
	MsgStopped        = "Bot stopped."
	MsgNotStarted     = "Send /start to begin a new search."
	MsgUnknownCommand = "Unknown command. Use /help for available commands."
	MsgInternalError  = "Something went wrong and the search was cancelled. Send /start to try again."
	MsgHelp           = "Commands:\n/start - Start a new search\n/cancel - Cancel the current search\n/help - Show this help\n/stop - Stop the bot\n\nSend /start, then a search query, then the maximum price."
)
