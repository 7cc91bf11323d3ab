package curseforge

import "github.com/matzehuels/dependents/pkg/deps"

// MinecraftGameID is the CurseForge game id of Minecraft.
const MinecraftGameID = 432

// Mod is a project record as returned by the API. Only the fields the
// resolver and the CLI use are decoded.
type Mod struct {
	ID                   int64   `json:"id"`
	GameID               int64   `json:"gameId"`
	Name                 string  `json:"name"`
	Slug                 string  `json:"slug"`
	Summary              string  `json:"summary"`
	DownloadCount        float64 `json:"downloadCount"`
	AllowModDistribution *bool   `json:"allowModDistribution"`
	ClassID              int64   `json:"classId"`
	DateModified         string  `json:"dateModified"`
	Links                struct {
		WebsiteURL string `json:"websiteUrl"`
	} `json:"links"`
}

// Project converts the record into the resolver's project type. A missing
// allowModDistribution flag counts as restricted.
func (m Mod) Project() deps.Project {
	return deps.Project{
		ID:                m.ID,
		Name:              m.Name,
		Slug:              m.Slug,
		AllowDistribution: m.AllowModDistribution != nil && *m.AllowModDistribution,
		DownloadCount:     int64(m.DownloadCount),
	}
}

// ModFile is one file of a project.
type ModFile struct {
	ID            int64   `json:"id"`
	ModID         int64   `json:"modId"`
	DisplayName   string  `json:"displayName"`
	FileName      string  `json:"fileName"`
	DownloadURL   *string `json:"downloadUrl"`
	DownloadCount float64 `json:"downloadCount"`
	FileLength    int64   `json:"fileLength"`
	FileDate      string  `json:"fileDate"`
}

// File converts the record into the resolver's file type. A withheld
// download URL becomes the empty string.
func (f ModFile) File() deps.File {
	var url string
	if f.DownloadURL != nil {
		url = *f.DownloadURL
	}
	return deps.File{
		ProjectID:     f.ModID,
		ID:            f.ID,
		FileName:      f.FileName,
		DownloadURL:   url,
		DownloadCount: int64(f.DownloadCount),
	}
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Index       int `json:"index"`
	PageSize    int `json:"pageSize"`
	ResultCount int `json:"resultCount"`
	TotalCount  int `json:"totalCount"`
}

type modResponse struct {
	Data Mod `json:"data"`
}

type modsResponse struct {
	Data []Mod `json:"data"`
}

// FilesPage is one page of a project's file listing.
type FilesPage struct {
	Data       []ModFile  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type searchResponse struct {
	Data       []Mod      `json:"data"`
	Pagination Pagination `json:"pagination"`
}
