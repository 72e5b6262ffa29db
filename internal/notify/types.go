package notify

// InlineKeyboardButton is one button of an inline keyboard. Exactly one of
// CallbackData or URL should be set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboardMarkup is an inline keyboard attached below a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Document describes an outbound document. Either FileRef references an
// already-uploaded file or Data carries fresh bytes with a filename.
type Document struct {
	FileRef string
	Data    []byte
	Name    string
	Caption string
}

// SentDocument reports the identifiers assigned to a delivered document.
type SentDocument struct {
	MessageID int64
	FileID    string
}

// Update is one long-poll update from the channel.
type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	ID       int64         `json:"message_id"`
	From     *UserInfo     `json:"from,omitempty"`
	Chat     Chat          `json:"chat"`
	Text     string        `json:"text,omitempty"`
	Caption  string        `json:"caption,omitempty"`
	Photo    []PhotoSize   `json:"photo,omitempty"`
	Document *DocumentInfo `json:"document,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// UserInfo identifies the sender of a message or callback.
type UserInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// PhotoSize is one resolution variant of an inbound photo. The API lists
// variants smallest first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// DocumentInfo describes an inbound document attachment.
type DocumentInfo struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID      string    `json:"id"`
	From    *UserInfo `json:"from,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Data    string    `json:"data,omitempty"`
}
