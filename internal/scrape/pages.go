package scrape

// Page names a section of a property record that can be requested.
type Page string

const (
	PageParcel      Page = "Parcel"
	PageOwner       Page = "Owner"
	PageMultiOwner  Page = "Multi-Owner"
	PageResidential Page = "Residential"
	PageLand        Page = "Land"
	PageValues      Page = "Values"
	PageHomestead   Page = "Homestead"
	PageSales       Page = "Sales"
)

// ValidPages lists every page name a request may ask for, in the order
// the record site presents them.
var ValidPages = []Page{
	PageParcel,
	PageOwner,
	PageMultiOwner,
	PageResidential,
	PageLand,
	PageValues,
	PageHomestead,
	PageSales,
}

// ValidPage reports whether name is a recognized record page.
func ValidPage(name string) bool {
	for _, p := range ValidPages {
		if string(p) == name {
			return true
		}
	}
	return false
}
