package models

// Member is the slice of the external identity collaborator this core
// cares about: an opaque id plus display fields carried in the session
// token. Profiles themselves live outside this service.
type Member struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
}
