package movies

// mergeMovie folds a candidate into the canonical row sharing its key.
// Fields the candidate supplies overwrite; fields it leaves empty keep the
// existing value. The row id and referral id always survive the merge.
func mergeMovie(existing, candidate Movie) Movie {
	merged := existing

	merged.Description = pick(candidate.Description, existing.Description)
	merged.Size = pick(candidate.Size, existing.Size)
	merged.Year = pick(candidate.Year, existing.Year)
	merged.DownloadLink = pick(candidate.DownloadLink, existing.DownloadLink)
	merged.CoverPhotoLink = pick(candidate.CoverPhotoLink, existing.CoverPhotoLink)
	merged.Quality = pick(candidate.Quality, existing.Quality)
	merged.Category = pick(candidate.Category, existing.Category)
	merged.Cast = pick(candidate.Cast, existing.Cast)
	merged.UploadDate = pick(candidate.UploadDate, existing.UploadDate)
	merged.SubtitleLink = pick(candidate.SubtitleLink, existing.SubtitleLink)
	merged.IMDBLink = pick(candidate.IMDBLink, existing.IMDBLink)
	merged.Tags = pick(candidate.Tags, existing.Tags)

	if candidate.IsSeries {
		merged.IsSeries = true
	}
	if len(candidate.SDownloadLink) > 0 {
		merged.SDownloadLink = candidate.SDownloadLink
	}
	if len(candidate.SubtitleLinks) > 0 {
		merged.SubtitleLinks = candidate.SubtitleLinks
	}
	if !candidate.DateCreated.IsZero() {
		merged.DateCreated = candidate.DateCreated
	}
	if candidate.ReferralID != "" && existing.ReferralID == "" {
		merged.ReferralID = candidate.ReferralID
	}

	return merged
}

func pick(incoming, current string) string {
	if incoming != "" {
		return incoming
	}
	return current
}
