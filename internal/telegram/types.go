package telegram

// Wire types are restricted to the fields the dispatcher consumes.

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *UserInfo   `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Photo     []PhotoSize `json:"photo"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type UserInfo struct {
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// DisplayName picks the friendliest available name for the sender.
func (m *Message) DisplayName() string {
	if m.From == nil {
		return ""
	}
	if m.From.FirstName != "" {
		return m.From.FirstName
	}
	return m.From.Username
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// LargestPhoto returns the highest resolution variant, or nil when the
// message carries no photo.
func (m *Message) LargestPhoto() *PhotoSize {
	var best *PhotoSize
	for i := range m.Photo {
		p := &m.Photo[i]
		if best == nil || p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}
