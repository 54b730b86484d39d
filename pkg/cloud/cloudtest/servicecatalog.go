package cloudtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
)

const stackARNOutput = "CloudformationStackARN"

func (p *Portfolio) detail() sctypes.PortfolioDetail {
	return sctypes.PortfolioDetail{
		Id:           str(p.ID),
		ARN:          str(p.ARN),
		DisplayName:  str(p.DisplayName),
		ProviderName: str(p.ProviderName),
	}
}

func (p *Product) detail() sctypes.ProductViewDetail {
	return sctypes.ProductViewDetail{
		ProductARN: str(p.ARN),
		ProductViewSummary: &sctypes.ProductViewSummary{
			Id:        str("prodview-" + p.ID),
			ProductId: str(p.ID),
			Name:      str(p.Name),
			Owner:     str(p.Owner),
			Type:      sctypes.ProductTypeCloudFormationTemplate,
		},
	}
}

func (a *Artifact) detail() sctypes.ProvisioningArtifactDetail {
	return sctypes.ProvisioningArtifactDetail{
		Id:          str(a.ID),
		Name:        str(a.Name),
		Type:        sctypes.ProvisioningArtifactTypeCloudFormationTemplate,
		CreatedTime: aws.Time(a.Created),
		Active:      aws.Bool(true),
	}
}

func (f *Fake) product(id string) (*Product, error) {
	p, ok := f.Products[id]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "product %s not found", id)
	}
	return p, nil
}

func (f *Fake) portfolio(id string) (*Portfolio, error) {
	p, ok := f.Portfolios[id]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "portfolio %s not found", id)
	}
	return p, nil
}

func (f *Fake) newRecord(recordType, instanceID string) *sctypes.RecordDetail {
	rec := &Record{ID: f.nextID("rec"), Type: recordType, InstanceID: instanceID}
	f.Records[rec.ID] = rec
	return &sctypes.RecordDetail{
		RecordId:             str(rec.ID),
		RecordType:           str(recordType),
		Status:               sctypes.RecordStatusCreated,
		ProvisionedProductId: str(instanceID),
	}
}

func (f *Fake) ListPortfolios(ctx context.Context, in *servicecatalog.ListPortfoliosInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ListPortfoliosOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ListPortfolios", false); err != nil {
		return nil, err
	}
	out := &servicecatalog.ListPortfoliosOutput{}
	for _, id := range sortedKeys(f.Portfolios) {
		out.PortfolioDetails = append(out.PortfolioDetails, f.Portfolios[id].detail())
	}
	return out, nil
}

func (f *Fake) CreatePortfolio(ctx context.Context, in *servicecatalog.CreatePortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.CreatePortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "CreatePortfolio", true); err != nil {
		return nil, err
	}
	id := f.nextID("port")
	p := &Portfolio{
		ID:           id,
		ARN:          fmt.Sprintf("arn:aws:catalog:%s:%s:portfolio/%s", f.Region, f.AccountID, id),
		DisplayName:  aws.ToString(in.DisplayName),
		ProviderName: aws.ToString(in.ProviderName),
		Tags:         make(map[string]string),
	}
	for _, t := range in.Tags {
		p.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.Portfolios[id] = p
	detail := p.detail()
	return &servicecatalog.CreatePortfolioOutput{PortfolioDetail: &detail}, nil
}

func (f *Fake) DeletePortfolio(ctx context.Context, in *servicecatalog.DeletePortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DeletePortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DeletePortfolio", true); err != nil {
		return nil, err
	}
	id := aws.ToString(in.Id)
	if _, err := f.portfolio(id); err != nil {
		return nil, err
	}
	for _, prod := range f.Products {
		if contains(prod.Portfolios, id) {
			return nil, apiError("ResourceInUseException", "portfolio %s still has products", id)
		}
	}
	delete(f.Portfolios, id)
	return &servicecatalog.DeletePortfolioOutput{}, nil
}

func (f *Fake) AssociatePrincipalWithPortfolio(ctx context.Context, in *servicecatalog.AssociatePrincipalWithPortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.AssociatePrincipalWithPortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "AssociatePrincipalWithPortfolio", true); err != nil {
		return nil, err
	}
	p, err := f.portfolio(aws.ToString(in.PortfolioId))
	if err != nil {
		return nil, err
	}
	if arn := aws.ToString(in.PrincipalARN); !contains(p.Principals, arn) {
		p.Principals = append(p.Principals, arn)
	}
	return &servicecatalog.AssociatePrincipalWithPortfolioOutput{}, nil
}

func (f *Fake) ListPrincipalsForPortfolio(ctx context.Context, in *servicecatalog.ListPrincipalsForPortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ListPrincipalsForPortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ListPrincipalsForPortfolio", false); err != nil {
		return nil, err
	}
	p, err := f.portfolio(aws.ToString(in.PortfolioId))
	if err != nil {
		return nil, err
	}
	out := &servicecatalog.ListPrincipalsForPortfolioOutput{}
	for _, arn := range p.Principals {
		out.Principals = append(out.Principals, sctypes.Principal{PrincipalARN: str(arn), PrincipalType: sctypes.PrincipalTypeIam})
	}
	return out, nil
}

func (f *Fake) DisassociatePrincipalFromPortfolio(ctx context.Context, in *servicecatalog.DisassociatePrincipalFromPortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DisassociatePrincipalFromPortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DisassociatePrincipalFromPortfolio", true); err != nil {
		return nil, err
	}
	p, err := f.portfolio(aws.ToString(in.PortfolioId))
	if err != nil {
		return nil, err
	}
	p.Principals = remove(p.Principals, aws.ToString(in.PrincipalARN))
	return &servicecatalog.DisassociatePrincipalFromPortfolioOutput{}, nil
}

func (f *Fake) SearchProductsAsAdmin(ctx context.Context, in *servicecatalog.SearchProductsAsAdminInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.SearchProductsAsAdminOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "SearchProductsAsAdmin", false); err != nil {
		return nil, err
	}
	queries := in.Filters[string(sctypes.ProductViewFilterByFullTextSearch)]
	out := &servicecatalog.SearchProductsAsAdminOutput{}
	for _, id := range sortedKeys(f.Products) {
		p := f.Products[id]
		if len(queries) == 0 || matchesAny(p.Name, queries) {
			out.ProductViewDetails = append(out.ProductViewDetails, p.detail())
		}
	}
	return out, nil
}

func (f *Fake) CreateProduct(ctx context.Context, in *servicecatalog.CreateProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.CreateProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "CreateProduct", true); err != nil {
		return nil, err
	}
	id := f.nextID("prod")
	p := &Product{
		ID:    id,
		ARN:   fmt.Sprintf("arn:aws:catalog:%s:%s:product/%s", f.Region, f.AccountID, id),
		Name:  aws.ToString(in.Name),
		Owner: aws.ToString(in.Owner),
		Tags:  make(map[string]string),
	}
	for _, t := range in.Tags {
		p.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	out := &servicecatalog.CreateProductOutput{}
	if params := in.ProvisioningArtifactParameters; params != nil {
		a := &Artifact{
			ID:          f.nextID("pa"),
			Name:        aws.ToString(params.Name),
			TemplateURL: params.Info["LoadTemplateFromURL"],
			Created:     time.Now().UTC(),
		}
		p.Artifacts = append(p.Artifacts, a)
		detail := a.detail()
		out.ProvisioningArtifactDetail = &detail
	}
	f.Products[id] = p
	detail := p.detail()
	out.ProductViewDetail = &detail
	return out, nil
}

func (f *Fake) DeleteProduct(ctx context.Context, in *servicecatalog.DeleteProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DeleteProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DeleteProduct", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.Id))
	if err != nil {
		return nil, err
	}
	if len(p.Portfolios) > 0 {
		return nil, apiError("ResourceInUseException", "product %s is still associated with portfolios", p.ID)
	}
	delete(f.Products, p.ID)
	return &servicecatalog.DeleteProductOutput{}, nil
}

func (f *Fake) AssociateProductWithPortfolio(ctx context.Context, in *servicecatalog.AssociateProductWithPortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.AssociateProductWithPortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "AssociateProductWithPortfolio", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	portfolioID := aws.ToString(in.PortfolioId)
	if _, err := f.portfolio(portfolioID); err != nil {
		return nil, err
	}
	if !contains(p.Portfolios, portfolioID) {
		p.Portfolios = append(p.Portfolios, portfolioID)
	}
	return &servicecatalog.AssociateProductWithPortfolioOutput{}, nil
}

func (f *Fake) ListPortfoliosForProduct(ctx context.Context, in *servicecatalog.ListPortfoliosForProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ListPortfoliosForProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ListPortfoliosForProduct", false); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	out := &servicecatalog.ListPortfoliosForProductOutput{}
	for _, id := range p.Portfolios {
		if portfolio, ok := f.Portfolios[id]; ok {
			out.PortfolioDetails = append(out.PortfolioDetails, portfolio.detail())
		}
	}
	return out, nil
}

func (f *Fake) DisassociateProductFromPortfolio(ctx context.Context, in *servicecatalog.DisassociateProductFromPortfolioInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DisassociateProductFromPortfolioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DisassociateProductFromPortfolio", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	p.Portfolios = remove(p.Portfolios, aws.ToString(in.PortfolioId))
	return &servicecatalog.DisassociateProductFromPortfolioOutput{}, nil
}

func (f *Fake) CreateConstraint(ctx context.Context, in *servicecatalog.CreateConstraintInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.CreateConstraintOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "CreateConstraint", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	portfolioID := aws.ToString(in.PortfolioId)
	for _, c := range p.Constraints {
		if c.PortfolioID == portfolioID && c.Type == aws.ToString(in.Type) {
			return nil, apiError("DuplicateResourceException", "constraint already exists for %s in %s", p.ID, portfolioID)
		}
	}
	c := Constraint{
		ID:          f.nextID("cons"),
		PortfolioID: portfolioID,
		Type:        aws.ToString(in.Type),
		Parameters:  aws.ToString(in.Parameters),
	}
	p.Constraints = append(p.Constraints, c)
	return &servicecatalog.CreateConstraintOutput{
		ConstraintDetail: &sctypes.ConstraintDetail{
			ConstraintId: str(c.ID),
			Type:         str(c.Type),
			PortfolioId:  str(portfolioID),
			ProductId:    str(p.ID),
		},
		ConstraintParameters: str(c.Parameters),
		Status:               sctypes.StatusAvailable,
	}, nil
}

func (f *Fake) CreateProvisioningArtifact(ctx context.Context, in *servicecatalog.CreateProvisioningArtifactInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.CreateProvisioningArtifactOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "CreateProvisioningArtifact", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	a := &Artifact{ID: f.nextID("pa"), Created: time.Now().UTC()}
	if in.Parameters != nil {
		a.Name = aws.ToString(in.Parameters.Name)
		a.TemplateURL = in.Parameters.Info["LoadTemplateFromURL"]
	}
	p.Artifacts = append(p.Artifacts, a)
	detail := a.detail()
	return &servicecatalog.CreateProvisioningArtifactOutput{
		ProvisioningArtifactDetail: &detail,
		Status:                     sctypes.StatusAvailable,
	}, nil
}

func (f *Fake) ListProvisioningArtifacts(ctx context.Context, in *servicecatalog.ListProvisioningArtifactsInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ListProvisioningArtifactsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ListProvisioningArtifacts", false); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	out := &servicecatalog.ListProvisioningArtifactsOutput{}
	for _, a := range p.Artifacts {
		out.ProvisioningArtifactDetails = append(out.ProvisioningArtifactDetails, a.detail())
	}
	return out, nil
}

func (f *Fake) DeleteProvisioningArtifact(ctx context.Context, in *servicecatalog.DeleteProvisioningArtifactInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DeleteProvisioningArtifactOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DeleteProvisioningArtifact", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	id := aws.ToString(in.ProvisioningArtifactId)
	kept := p.Artifacts[:0]
	found := false
	for _, a := range p.Artifacts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil, apiError("ResourceNotFoundException", "artifact %s not found", id)
	}
	p.Artifacts = kept
	return &servicecatalog.DeleteProvisioningArtifactOutput{}, nil
}

func (f *Fake) ListLaunchPaths(ctx context.Context, in *servicecatalog.ListLaunchPathsInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ListLaunchPathsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ListLaunchPaths", false); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	out := &servicecatalog.ListLaunchPathsOutput{}
	for _, id := range p.Portfolios {
		name := id
		if portfolio, ok := f.Portfolios[id]; ok {
			name = portfolio.DisplayName
		}
		out.LaunchPathSummaries = append(out.LaunchPathSummaries, sctypes.LaunchPathSummary{
			Id:   str("lpv-" + id),
			Name: str(name),
		})
	}
	return out, nil
}

func (f *Fake) hasArtifact(p *Product, id string) bool {
	for _, a := range p.Artifacts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (f *Fake) hasPath(p *Product, pathID string) bool {
	for _, id := range p.Portfolios {
		if "lpv-"+id == pathID {
			return true
		}
	}
	return false
}

func (f *Fake) ProvisionProduct(ctx context.Context, in *servicecatalog.ProvisionProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.ProvisionProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "ProvisionProduct", true); err != nil {
		return nil, err
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	if !f.hasArtifact(p, aws.ToString(in.ProvisioningArtifactId)) {
		return nil, apiError("ResourceNotFoundException", "artifact %s not found", aws.ToString(in.ProvisioningArtifactId))
	}
	if !f.hasPath(p, aws.ToString(in.PathId)) {
		return nil, apiError("ResourceNotFoundException", "launch path %s not found", aws.ToString(in.PathId))
	}
	name := aws.ToString(in.ProvisionedProductName)
	if f.instanceByName(name) != nil {
		return nil, apiError("DuplicateResourceException", "provisioned product %s already exists", name)
	}

	inst := &Instance{
		ID:         f.nextID("pp"),
		Name:       name,
		ProductID:  p.ID,
		ArtifactID: aws.ToString(in.ProvisioningArtifactId),
		Parameters: make(map[string]string),
	}
	for _, param := range in.ProvisioningParameters {
		inst.Parameters[aws.ToString(param.Key)] = aws.ToString(param.Value)
	}
	inst.Outputs = copyMap(f.Outputs[name])
	inst.Outputs[stackARNOutput] = fmt.Sprintf("arn:aws:cloudformation:%s:%s:stack/SC-%s/%s", f.Region, f.AccountID, f.AccountID, inst.ID)
	f.Instances[inst.ID] = inst

	detail := f.newRecord("PROVISION_PRODUCT", inst.ID)
	detail.ProvisionedProductName = str(name)
	return &servicecatalog.ProvisionProductOutput{RecordDetail: detail}, nil
}

func (f *Fake) UpdateProvisionedProduct(ctx context.Context, in *servicecatalog.UpdateProvisionedProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.UpdateProvisionedProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "UpdateProvisionedProduct", true); err != nil {
		return nil, err
	}
	id := aws.ToString(in.ProvisionedProductId)
	inst, ok := f.Instances[id]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "provisioned product %s not found", id)
	}
	p, err := f.product(aws.ToString(in.ProductId))
	if err != nil {
		return nil, err
	}
	if !f.hasArtifact(p, aws.ToString(in.ProvisioningArtifactId)) {
		return nil, apiError("ResourceNotFoundException", "artifact %s not found", aws.ToString(in.ProvisioningArtifactId))
	}

	inst.ArtifactID = aws.ToString(in.ProvisioningArtifactId)
	inst.Parameters = make(map[string]string)
	for _, param := range in.ProvisioningParameters {
		inst.Parameters[aws.ToString(param.Key)] = aws.ToString(param.Value)
	}
	if outputs, ok := f.Outputs[inst.Name]; ok {
		for k, v := range outputs {
			inst.Outputs[k] = v
		}
	}
	inst.Updates++

	return &servicecatalog.UpdateProvisionedProductOutput{RecordDetail: f.newRecord("UPDATE_PROVISIONED_PRODUCT", inst.ID)}, nil
}

func (f *Fake) TerminateProvisionedProduct(ctx context.Context, in *servicecatalog.TerminateProvisionedProductInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.TerminateProvisionedProductOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "TerminateProvisionedProduct", true); err != nil {
		return nil, err
	}
	id := aws.ToString(in.ProvisionedProductId)
	if _, ok := f.Instances[id]; !ok {
		return nil, apiError("ResourceNotFoundException", "provisioned product %s not found", id)
	}
	delete(f.Instances, id)
	return &servicecatalog.TerminateProvisionedProductOutput{RecordDetail: f.newRecord("TERMINATE_PROVISIONED_PRODUCT", id)}, nil
}

func (f *Fake) DescribeRecord(ctx context.Context, in *servicecatalog.DescribeRecordInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DescribeRecordOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "DescribeRecord", false); err != nil {
		return nil, err
	}
	id := aws.ToString(in.Id)
	rec, ok := f.Records[id]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "record %s not found", id)
	}

	status := string(sctypes.RecordStatusSucceeded)
	if n := len(f.RecordStatuses); n > 0 {
		i := rec.Polls
		if i >= n {
			i = n - 1
		}
		status = f.RecordStatuses[i]
	}
	rec.Polls++

	detail := &sctypes.RecordDetail{
		RecordId:             str(rec.ID),
		RecordType:           str(rec.Type),
		Status:               sctypes.RecordStatus(status),
		ProvisionedProductId: str(rec.InstanceID),
	}
	if detail.Status == sctypes.RecordStatusFailed || detail.Status == sctypes.RecordStatusInProgressInError {
		detail.RecordErrors = []sctypes.RecordError{{Code: str("StackFailed"), Description: str("stack operation failed")}}
	}
	return &servicecatalog.DescribeRecordOutput{RecordDetail: detail}, nil
}

func (f *Fake) SearchProvisionedProducts(ctx context.Context, in *servicecatalog.SearchProvisionedProductsInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.SearchProvisionedProductsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "SearchProvisionedProducts", false); err != nil {
		return nil, err
	}
	var wanted []string
	for _, q := range in.Filters[string(sctypes.ProvisionedProductViewFilterBySearchQuery)] {
		wanted = append(wanted, strings.TrimPrefix(q, "name:"))
	}

	out := &servicecatalog.SearchProvisionedProductsOutput{}
	for _, id := range sortedKeys(f.Instances) {
		inst := f.Instances[id]
		if len(wanted) > 0 && !contains(wanted, inst.Name) {
			continue
		}
		out.ProvisionedProducts = append(out.ProvisionedProducts, sctypes.ProvisionedProductAttribute{
			Id:        str(inst.ID),
			Name:      str(inst.Name),
			ProductId: str(inst.ProductID),
			Status:    sctypes.ProvisionedProductStatusAvailable,
		})
	}
	return out, nil
}

func (f *Fake) GetProvisionedProductOutputs(ctx context.Context, in *servicecatalog.GetProvisionedProductOutputsInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.GetProvisionedProductOutputsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("servicecatalog", "GetProvisionedProductOutputs", false); err != nil {
		return nil, err
	}
	id := aws.ToString(in.ProvisionedProductId)
	inst, ok := f.Instances[id]
	if !ok {
		return nil, apiError("ResourceNotFoundException", "provisioned product %s not found", id)
	}
	out := &servicecatalog.GetProvisionedProductOutputsOutput{}
	for _, k := range sortedKeys(inst.Outputs) {
		out.Outputs = append(out.Outputs, sctypes.RecordOutput{OutputKey: str(k), OutputValue: str(inst.Outputs[k])})
	}
	return out, nil
}
