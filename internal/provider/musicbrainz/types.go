package musicbrainz

// release is a MusicBrainz release as returned by the search endpoint.
type release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         string         `json:"date"`
	Country      string         `json:"country"`
	Status       string         `json:"status"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Tags         []tag          `json:"tags"`
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// searchResponse is the JSON response for release searches.
type searchResponse struct {
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Releases []release `json:"releases"`
}

// apiError is the MusicBrainz error response shape.
type apiError struct {
	Error string `json:"error"`
}
