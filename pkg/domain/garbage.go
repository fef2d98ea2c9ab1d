package domain

// Garbage is a retired remote annotation project awaiting deletion
// on the annotation tool.
type Garbage struct {
	// remote identifier of the retired annotation project.
	Ref string

	// title it was created with.
	Title string
}

func (g *Garbage) Equal(o *Garbage) bool {
	return g.Ref == o.Ref && g.Title == o.Title
}
