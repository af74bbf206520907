package domain

// VersionNodeKind tags the kinds of product nodes that carry a current version marker.
type VersionNodeKind string

const (
	NodeProduct           VersionNodeKind = "product"
	NodeAvailability      VersionNodeKind = "availability"
	NodeCoverageVariant   VersionNodeKind = "coverage_variant"
	NodeSubCoverage       VersionNodeKind = "sub_coverage"
	NodeExclusion         VersionNodeKind = "exclusion"
	NodeCustomAttribute   VersionNodeKind = "custom_attribute"
	NodeInsuredObject     VersionNodeKind = "insured_object"
	NodeInsuredIndividual VersionNodeKind = "insured_individual"
)

// versionNode is one node of the product tree. current points into the product so that
// transforms mutate the product in place.
type versionNode struct {
	kind     VersionNodeKind
	current  *bool
	children []versionNode
}

// VersionVisitor is called once per node in depth first order.
type VersionVisitor func(kind VersionNodeKind, current *bool)

// WalkVersionNodes visits every node of p that carries a current version marker.
// The product header itself is not visited.
func WalkVersionNodes(p *ProductDetail, visit VersionVisitor) {
	if p == nil || visit == nil {
		return
	}
	for _, child := range productTree(p).children {
		walk(child, visit)
	}
}

// DetachVersion clears the current version marker on every nested node of p so that a
// copy can be submitted as a new version. It returns the number of nodes touched.
func DetachVersion(p *ProductDetail) int {
	touched := 0
	WalkVersionNodes(p, func(_ VersionNodeKind, current *bool) {
		*current = false
		touched++
	})
	return touched
}

func walk(node versionNode, visit VersionVisitor) {
	if node.current != nil {
		visit(node.kind, node.current)
	}
	for _, child := range node.children {
		walk(child, visit)
	}
}

func productTree(p *ProductDetail) versionNode {
	root := versionNode{kind: NodeProduct, current: &p.Header.IsCurrentVersion}
	for i := range p.Availability {
		root.children = append(root.children, versionNode{kind: NodeAvailability, current: &p.Availability[i].IsCurrentVersion})
	}
	for i := range p.CoverageVariants {
		root.children = append(root.children, variantTree(&p.CoverageVariants[i]))
	}
	root.children = append(root.children, attributeNodes(p.CustomAttributes)...)
	root.children = append(root.children, objectNodes(p.InsuredObjects)...)
	root.children = append(root.children, individualNodes(p.InsuredIndividuals)...)
	return root
}

func variantTree(v *CoverageVariant) versionNode {
	node := versionNode{kind: NodeCoverageVariant, current: &v.IsCurrentVersion}
	for i := range v.SubCoverages {
		sub := &v.SubCoverages[i]
		subNode := versionNode{kind: NodeSubCoverage, current: &sub.IsCurrentVersion}
		subNode.children = append(subNode.children, exclusionNodes(sub.Exclusions)...)
		subNode.children = append(subNode.children, attributeNodes(sub.CustomAttributes)...)
		node.children = append(node.children, subNode)
	}
	node.children = append(node.children, exclusionNodes(v.Exclusions)...)
	node.children = append(node.children, objectNodes(v.InsuredObjects)...)
	node.children = append(node.children, individualNodes(v.InsuredIndividuals)...)
	return node
}

func exclusionNodes(items []Exclusion) []versionNode {
	nodes := make([]versionNode, 0, len(items))
	for i := range items {
		nodes = append(nodes, versionNode{kind: NodeExclusion, current: &items[i].IsCurrentVersion})
	}
	return nodes
}

func attributeNodes(items []CustomAttribute) []versionNode {
	nodes := make([]versionNode, 0, len(items))
	for i := range items {
		nodes = append(nodes, versionNode{kind: NodeCustomAttribute, current: &items[i].IsCurrentVersion})
	}
	return nodes
}

func objectNodes(items []InsuredObject) []versionNode {
	nodes := make([]versionNode, 0, len(items))
	for i := range items {
		node := versionNode{kind: NodeInsuredObject, current: &items[i].IsCurrentVersion}
		node.children = attributeNodes(items[i].CustomAttributes)
		nodes = append(nodes, node)
	}
	return nodes
}

func individualNodes(items []InsuredIndividual) []versionNode {
	nodes := make([]versionNode, 0, len(items))
	for i := range items {
		node := versionNode{kind: NodeInsuredIndividual, current: &items[i].IsCurrentVersion}
		node.children = attributeNodes(items[i].CustomAttributes)
		nodes = append(nodes, node)
	}
	return nodes
}

// CloneProduct returns a deep copy of p so transforms never alias the bound product.
func CloneProduct(p ProductDetail) ProductDetail {
	out := p
	out.Header.Country = append([]string(nil), p.Header.Country...)
	out.Header.AllowedUsers = append([]string(nil), p.Header.AllowedUsers...)
	out.VersionHistory = append([]VersionHistoryEntry(nil), p.VersionHistory...)
	out.Availability = make([]AvailabilityStandard, len(p.Availability))
	for i, a := range p.Availability {
		a.Countries = append([]string(nil), a.Countries...)
		out.Availability[i] = a
	}
	out.CoverageVariants = make([]CoverageVariant, len(p.CoverageVariants))
	for i, v := range p.CoverageVariants {
		out.CoverageVariants[i] = cloneVariant(v)
	}
	out.CustomAttributes = append([]CustomAttribute(nil), p.CustomAttributes...)
	out.InsuredObjects = cloneObjects(p.InsuredObjects)
	out.InsuredIndividuals = cloneIndividuals(p.InsuredIndividuals)
	return out
}

func cloneVariant(v CoverageVariant) CoverageVariant {
	out := v
	out.SubCoverages = make([]SubCoverage, len(v.SubCoverages))
	for i, sub := range v.SubCoverages {
		sub.Exclusions = append([]Exclusion(nil), sub.Exclusions...)
		sub.CustomAttributes = append([]CustomAttribute(nil), sub.CustomAttributes...)
		out.SubCoverages[i] = sub
	}
	out.Exclusions = append([]Exclusion(nil), v.Exclusions...)
	out.InsuredObjects = cloneObjects(v.InsuredObjects)
	out.InsuredIndividuals = cloneIndividuals(v.InsuredIndividuals)
	return out
}

func cloneObjects(items []InsuredObject) []InsuredObject {
	if items == nil {
		return nil
	}
	out := make([]InsuredObject, len(items))
	for i, item := range items {
		item.CustomAttributes = append([]CustomAttribute(nil), item.CustomAttributes...)
		out[i] = item
	}
	return out
}

func cloneIndividuals(items []InsuredIndividual) []InsuredIndividual {
	if items == nil {
		return nil
	}
	out := make([]InsuredIndividual, len(items))
	for i, item := range items {
		item.CustomAttributes = append([]CustomAttribute(nil), item.CustomAttributes...)
		out[i] = item
	}
	return out
}
