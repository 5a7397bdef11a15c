package twitter

import "encoding/json"

// twitterUser is the subset of verify_credentials the broker maps. TimeZone
// is the legacy abbreviation-or-city field, fed through timezone
// normalization later.
type twitterUser struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url_https"`
	TimeZone        string `json:"time_zone"`
}

func unmarshalUser(body []byte, info *twitterUser) error {
	return json.Unmarshal(body, info)
}
