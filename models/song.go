package models

import "time"

// Song is one catalog row. Its identity is its position in the loaded catalog.
type Song struct {
	Genre       string `bson:"genre" json:"genre"`
	Artist      string `bson:"artist" json:"artist"`
	SongTitle   string `bson:"song_title" json:"song_title"`
	Description string `bson:"description" json:"description"`
}

// SongDocument is how a Song is stored in MongoDB. Position keeps the
// catalog order so it lines up with the similarity index.
type SongDocument struct {
	Position  int       `bson:"position"`
	Song      Song      `bson:",inline"`
	CreatedAt time.Time `bson:"created_at"`
}

type SearchResult struct {
	Position int     `json:"position"`
	Distance float64 `json:"distance"`
	Song     Song    `json:"song"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
